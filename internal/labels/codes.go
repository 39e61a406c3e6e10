package labels

import (
	"crypto/rand"
	"math/big"

	"github.com/hvirtala/bottletag-go/internal/datastore"
	"github.com/hvirtala/bottletag-go/internal/errors"
)

// codeAlphabet deliberately omits 0/O, 1/I/L to keep printed codes readable.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// attemptsPerCode bounds collision retries: a whole batch gets
// attemptsPerCode * quantity draws before the operation aborts.
const attemptsPerCode = 10

func randomCode(prefix string, suffixLength int) (string, error) {
	suffix := make([]byte, suffixLength)
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		suffix[i] = codeAlphabet[n.Int64()]
	}
	return prefix + string(suffix), nil
}

// generateCodes draws quantity collision-free label codes, checking each
// candidate against both the codes already accepted in this batch and the
// persistent store. The attempt budget bounds pathological collision storms
// without blocking indefinitely; exhausting it aborts the whole batch.
func generateCodes(ds datastore.Interface, prefix string, suffixLength, quantity int) ([]string, error) {
	codes := make([]string, 0, quantity)
	accepted := make(map[string]struct{}, quantity)

	maxAttempts := attemptsPerCode * quantity
	for attempts := 0; len(codes) < quantity; attempts++ {
		if attempts >= maxAttempts {
			return nil, errors.Newf("unique label code generation exhausted after %d attempts", maxAttempts).
				Component("labels").
				Category(errors.CategoryLimit).
				Context("quantity", quantity).
				Context("accepted", len(codes)).
				Build()
		}

		code, err := randomCode(prefix, suffixLength)
		if err != nil {
			return nil, errors.New(err).
				Component("labels").
				Category(errors.CategoryGeneric).
				Context("operation", "random_code").
				Build()
		}

		if _, dup := accepted[code]; dup {
			continue
		}
		exists, err := ds.LabelCodeExists(code)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		accepted[code] = struct{}{}
		codes = append(codes, code)
	}

	return codes, nil
}
