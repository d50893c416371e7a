package custody

import (
	"fmt"
	"math/big"
	"sort"
)

// Quorum is the number of distinct guardian approvals every gated action needs.
const Quorum = 3

// Kind enumerates the governance actions that carry an approval cycle.
type Kind uint8

const (
	KindRelease Kind = iota + 1
	KindChangeAdmin
	KindPause
	KindUnpause
	KindWithdrawal
	KindOwnerChange
)

// Canonical request tags. Guardians name the cycle they vote on by tag.
const (
	TagRelease     = "releaseTokens"
	TagChangeAdmin = "changeSuperAdmin"
	TagPause       = "pause"
	TagUnpause     = "unpause"
	TagWithdrawal  = "approveWithdraw"
	TagOwnerChange = "changeOwner"
)

var kindTags = map[Kind]string{
	KindRelease:     TagRelease,
	KindChangeAdmin: TagChangeAdmin,
	KindPause:       TagPause,
	KindUnpause:     TagUnpause,
	KindWithdrawal:  TagWithdrawal,
	KindOwnerChange: TagOwnerChange,
}

// Tag returns the canonical request tag of k.
func (k Kind) Tag() string { return kindTags[k] }

// String implements fmt.Stringer.
func (k Kind) String() string {
	if t, ok := kindTags[k]; ok {
		return t
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// KindFromTag resolves a request tag to its Kind.
func KindFromTag(tag string) (Kind, bool) {
	for k, t := range kindTags {
		if t == tag {
			return k, true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindTags[k]; !ok {
		return nil, fmt.Errorf("unknown request kind %d", uint8(k))
	}
	return []byte(k.Tag()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	kind, ok := KindFromTag(string(b))
	if !ok {
		return fmt.Errorf("%w: request tag %q", ErrNotFound, string(b))
	}
	*k = kind
	return nil
}

// RequestKey identifies one approval cycle. Plain actions use only Kind;
// withdrawals add the exact Amount in base units; owner changes add the
// Outgoing/Incoming pair.
type RequestKey struct {
	Kind     Kind    `json:"kind"`
	Amount   string  `json:"amount,omitempty"`
	Outgoing Address `json:"outgoing"`
	Incoming Address `json:"incoming"`
}

// ActionKey returns the key for a plain action cycle.
func ActionKey(k Kind) RequestKey { return RequestKey{Kind: k} }

// WithdrawalKey returns the key for a withdrawal of exactly amount.
func WithdrawalKey(amount *big.Int) RequestKey {
	return RequestKey{Kind: KindWithdrawal, Amount: clone(amount).String()}
}

// OwnerChangeKey returns the key for replacing outgoing with incoming.
func OwnerChangeKey(outgoing, incoming Address) RequestKey {
	return RequestKey{Kind: KindOwnerChange, Outgoing: outgoing, Incoming: incoming}
}

// approvalBook tracks the guardians who approved each open cycle.
// Cycles are created lazily on first approval and deleted on reset.
type approvalBook struct {
	cycles map[RequestKey]map[Address]struct{}
}

func newApprovalBook() approvalBook {
	return approvalBook{cycles: make(map[RequestKey]map[Address]struct{})}
}

func (b *approvalBook) approve(key RequestKey, guardian Address) (int, error) {
	cycle, ok := b.cycles[key]
	if !ok {
		cycle = make(map[Address]struct{})
		b.cycles[key] = cycle
	}
	if _, dup := cycle[guardian]; dup {
		return len(cycle), ErrAlreadyApproved
	}
	cycle[guardian] = struct{}{}
	return len(cycle), nil
}

func (b *approvalBook) count(key RequestKey) int {
	return len(b.cycles[key])
}

func (b *approvalBook) hasQuorum(key RequestKey) bool {
	return b.count(key) >= Quorum
}

func (b *approvalBook) reset(key RequestKey) {
	delete(b.cycles, key)
}

// forget drops a departed guardian's votes from every open cycle.
func (b *approvalBook) forget(guardian Address) {
	for key, cycle := range b.cycles {
		delete(cycle, guardian)
		if len(cycle) == 0 {
			delete(b.cycles, key)
		}
	}
}

func (b *approvalBook) approvers(key RequestKey) []Address {
	out := make([]Address, 0, len(b.cycles[key]))
	for a := range b.cycles[key] {
		out = append(out, a)
	}
	sortAddresses(out)
	return out
}

func (b *approvalBook) keys() []RequestKey {
	out := make([]RequestKey, 0, len(b.cycles))
	for k := range b.cycles {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].Amount != out[j].Amount {
			return out[i].Amount < out[j].Amount
		}
		if out[i].Outgoing != out[j].Outgoing {
			return out[i].Outgoing.String() < out[j].Outgoing.String()
		}
		return out[i].Incoming.String() < out[j].Incoming.String()
	})
	return out
}

func sortAddresses(as []Address) {
	sort.Slice(as, func(i, j int) bool { return as[i].String() < as[j].String() })
}
