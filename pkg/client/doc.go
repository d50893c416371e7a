// Package client is the Go SDK for the wTOMAX custody service.
//
// Reads are public and need no credentials:
//
//	c, _ := client.New("https://custody.example.com")
//	st, err := c.Status(ctx)
//	fmt.Println(st.TotalSupply.Tokens, st.Paused)
//
// Mutating calls carry a caller token. Either pass a token obtained
// elsewhere with WithBearerToken, or let the client exchange an address and
// secret for one and refresh it shortly before it expires:
//
//	c, _ := client.New(baseURL, client.WithCredentials(addr, secret))
//	n, err := c.ApproveRequest(ctx, "pause")
//
// Amounts cross the wire as decimal token strings ("12.5"); responses carry
// both base units and the decimal form.
//
// Failed calls return *APIError. Compare its Code against the Code*
// constants, or use IsCode:
//
//	if client.IsCode(err, client.CodeTooSoon) {
//	    // wait for the next release window
//	}
package client
