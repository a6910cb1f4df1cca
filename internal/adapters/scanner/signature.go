package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/target/mmk-docpipe/internal/core"
)

// EICARSignature is the standard antivirus test string.
const EICARSignature = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

const eicarName = "Eicar-Test-Signature"

// SignatureScanner flags objects containing the EICAR test string. It exists
// for local development where no antivirus service runs.
type SignatureScanner struct {
	now func() time.Time
}

// NewSignatureScanner returns a SignatureScanner. A nil now uses time.Now.
func NewSignatureScanner(now func() time.Time) *SignatureScanner {
	if now == nil {
		now = time.Now
	}
	return &SignatureScanner{now: now}
}

// Scan reads r in chunks, keeping an overlap so a signature split across
// reads is still found.
func (s *SignatureScanner) Scan(ctx context.Context, _ string, r io.Reader) (*core.ScanVerdict, error) {
	sig := []byte(EICARSignature)
	buf := make([]byte, 32*1024)
	var tail []byte
	found := false
	for !found {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			window := append(tail, buf[:n]...)
			found = bytes.Contains(window, sig)
			keep := min(len(window), len(sig)-1)
			tail = append(tail[:0], window[len(window)-keep:]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read object: %w", err)
		}
	}

	v := &core.ScanVerdict{
		Infected:  found,
		Engine:    "signature",
		ScannedAt: s.now().UTC(),
	}
	if found {
		v.Signature = eicarName
	}
	return v, nil
}

var _ core.Scanner = (*SignatureScanner)(nil)
