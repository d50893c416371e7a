package identity

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"net/http"

	"github.com/gin-gonic/gin"
)

// JWK is a single RSA public key in JSON Web Key form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSet is the body of the JWKS endpoint.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// SigningKeyID is the kid advertised for the caller token key.
const SigningKeyID = "wtomax-caller-key-1"

// JWKSHandler serves the caller token verification key so that external
// services can check tokens without calling custodyd.
func JWKSHandler(tokens *CallerTokenIssuer) gin.HandlerFunc {
	set := JWKSet{Keys: []JWK{publicJWK(tokens.PublicKey(), SigningKeyID)}}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, set)
	}
}

func publicJWK(pub *rsa.PublicKey, kid string) JWK {
	n := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())

	eBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(eBuf, uint64(pub.E))
	i := 0
	for i < len(eBuf)-1 && eBuf[i] == 0 {
		i++
	}
	e := base64.RawURLEncoding.EncodeToString(eBuf[i:])

	return JWK{Kty: "RSA", Use: "sig", Kid: kid, Alg: "RS256", N: n, E: e}
}
