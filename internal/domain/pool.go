package domain

// Pool is a liquidity pool with its ordered coin list as discovered on chain.
// A pool record is replaced wholesale under the overwrite policy, never
// partially mutated.
type Pool struct {
	ID             string   // pool address
	Coins          []string // ordered token addresses by coin index
	LPToken        string   // the pool's own share token address
	CreatedAtBlock int64    // block at which the record was first materialized
}

// Valid reports whether the pool record is structurally usable: a non-empty
// coin list in which every entry is a well-formed non-zero address.
func (p *Pool) Valid() bool {
	if p == nil || len(p.Coins) == 0 {
		return false
	}
	for _, c := range p.Coins {
		if c == "" || c == ZeroAddress {
			return false
		}
	}
	return true
}
