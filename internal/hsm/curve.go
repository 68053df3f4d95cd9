package hsm

import (
	"crypto/elliptic"
	"math/big"
)

// CurveKind tells which arithmetic a curve uses.
type CurveKind int

const (
	Weierstrass CurveKind = iota
	Edwards
	Montgomery
)

// Curve describes the domain parameters the engine needs for a curve.
type Curve struct {
	Name string
	Kind CurveKind
	// OpSize is the byte width of every operand and coordinate.
	OpSize int
	// Order is the order of the base point, big-endian, OpSize bytes.
	Order []byte

	ec elliptic.Curve
}

// OrderBits returns the bit length of the base point order.
func (c *Curve) OrderBits() int {
	return new(big.Int).SetBytes(c.Order).BitLen()
}

// Params returns the standard library parameters of a Weierstrass curve.
func (c *Curve) Params() *elliptic.CurveParams {
	if c.ec == nil {
		return nil
	}
	return c.ec.Params()
}

// Elliptic returns the standard library curve, or nil for curves that are
// not Weierstrass.
func (c *Curve) Elliptic() elliptic.Curve { return c.ec }

var (
	P224 = nistCurve("P-224", elliptic.P224())
	P256 = nistCurve("P-256", elliptic.P256())
	P384 = nistCurve("P-384", elliptic.P384())
	P521 = nistCurve("P-521", elliptic.P521())

	Ed25519 = &Curve{Name: "Ed25519", Kind: Edwards, OpSize: 32, Order: orderBytes(ed25519Order, 32)}
	Ed448   = &Curve{Name: "Ed448", Kind: Edwards, OpSize: 57, Order: orderBytes(ed448Order, 57)}
	X25519  = &Curve{Name: "X25519", Kind: Montgomery, OpSize: 32, Order: orderBytes(ed25519Order, 32)}
	X448    = &Curve{Name: "X448", Kind: Montgomery, OpSize: 56, Order: orderBytes(ed448Order, 56)}
)

var (
	// 2^252 + 27742317777372353535851937790883648493
	ed25519Order = func() *big.Int {
		l, _ := new(big.Int).SetString("27742317777372353535851937790883648493", 10)
		return l.Add(l, new(big.Int).Lsh(big.NewInt(1), 252))
	}()
	// 2^446 - 13818066809895115352007386748515426880336692474882178609894547503885
	ed448Order = func() *big.Int {
		c, _ := new(big.Int).SetString("13818066809895115352007386748515426880336692474882178609894547503885", 10)
		return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 446), c)
	}()
)

var curves = map[string]*Curve{}

func init() {
	for _, c := range []*Curve{P224, P256, P384, P521, Ed25519, Ed448, X25519, X448} {
		curves[c.Name] = c
	}
}

// CurveByName looks up a curve by its standard name.
func CurveByName(name string) (*Curve, bool) {
	c, ok := curves[name]
	return c, ok
}

func nistCurve(name string, ec elliptic.Curve) *Curve {
	size := (ec.Params().BitSize + 7) / 8
	return &Curve{
		Name:   name,
		Kind:   Weierstrass,
		OpSize: size,
		Order:  orderBytes(ec.Params().N, size),
		ec:     ec,
	}
}

func orderBytes(n *big.Int, size int) []byte {
	return n.FillBytes(make([]byte, size))
}
