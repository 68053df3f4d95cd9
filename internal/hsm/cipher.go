package hsm

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/glinharesb/sicrypto/internal/status"
)

// BlockCipher is the AES engine used by the CTR DRBG.
type BlockCipher struct {
	block cipher.Block
}

// NewAES keys the block cipher engine. Keys are 16, 24 or 32 bytes.
func NewAES(key []byte) (*BlockCipher, status.Code) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, status.ErrInvalidArg
	}
	b, err := aes.NewCipher(key)
	if err != nil {
		return nil, status.ErrInvalidArg
	}
	return &BlockCipher{block: b}, status.OK
}

// CTR encrypts in under counter mode starting at counter block iv+1 and
// writes to out. iv is advanced to the last counter block used.
func (c *BlockCipher) CTR(iv, out, in []byte) status.Code {
	if len(iv) != aes.BlockSize || len(out) < len(in) {
		return status.ErrInvalidArg
	}
	ctr := make([]byte, aes.BlockSize)
	copy(ctr, iv)
	increment(ctr)
	cipher.NewCTR(c.block, ctr).XORKeyStream(out[:len(in)], in)
	advance(iv, (len(in)+aes.BlockSize-1)/aes.BlockSize)
	return status.OK
}

func increment(b []byte) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i]++
		if b[i] != 0 {
			return
		}
	}
}

func advance(b []byte, n int) {
	for range n {
		increment(b)
	}
}
