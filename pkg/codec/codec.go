// Package codec packs a negotiation payload into the narrow capacity of a
// scannable optical code and unpacks it on the far side.
//
// Encoding is canonical JSON first, gzip+base64 with a COMPRESSED: prefix when
// compression actually pays for itself, and a lossy simplification of the
// session description when even that does not fit. Decoding reverses the
// compression exactly and never yields a partial payload.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/paircall/paircall/pkg/signal"
)

// CompressedPrefix tags an encoded string whose remainder is
// base64(gzip(canonical JSON)).
const CompressedPrefix = "COMPRESSED:"

// compressionThreshold is the fraction of the raw length the compressed form
// must stay under to be worth the scan-reliability cost of denser symbols.
const compressionThreshold = 0.7

// maxSimplifiedCandidates caps the candidate list when the payload has to be
// degraded to fit.
const maxSimplifiedCandidates = 3

// essentialPrefixes are the SDP line prefixes that survive lossy
// simplification: version, origin, session name, timing, media and connection
// descriptors, codec maps, direction, DTLS fingerprint and setup role, media
// ids and ICE credentials. Everything else is renegotiable.
var essentialPrefixes = []string{
	"v=", "o=", "s=", "t=", "m=", "c=",
	"a=rtpmap:", "a=sendrecv", "a=recvonly", "a=sendonly",
	"a=fingerprint", "a=setup", "a=mid",
	"a=ice-ufrag", "a=ice-pwd",
}

// Config sizes the codec against a concrete optical symbol.
type Config struct {
	// CapacityBytes is the largest encoded string that still scans reliably
	// at the target physical size.
	CapacityBytes int
}

func DefaultConfig() Config {
	return Config{CapacityBytes: 1200}
}

// Codec encodes and decodes negotiation payloads for the optical channel.
type Codec struct {
	cfg Config
}

func New(cfg Config) *Codec {
	if cfg.CapacityBytes <= 0 {
		cfg = DefaultConfig()
	}
	return &Codec{cfg: cfg}
}

// Capacity returns the symbol capacity the codec is sized against.
func (c *Codec) Capacity() int { return c.cfg.CapacityBytes }

// Encode serializes p into a transport-safe string that fits the configured
// capacity. Simplified reports whether lossy degradation was applied; callers
// that care about full fidelity can warn the user.
func (c *Codec) Encode(p signal.NegotiationPayload) (encoded string, simplified bool, err error) {
	if err := p.Validate(); err != nil {
		return "", false, err
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return "", false, fmt.Errorf("marshal payload: %w", err)
	}

	chosen := string(raw)
	if compressed, ok := compress(raw); ok && float64(len(compressed)) < compressionThreshold*float64(len(raw)) {
		chosen = compressed
	}
	if len(chosen) <= c.cfg.CapacityBytes {
		return chosen, false, nil
	}

	slog.Debug("payload exceeds optical capacity, simplifying",
		"raw", len(raw), "chosen", len(chosen), "capacity", c.cfg.CapacityBytes)

	simple := simplify(p)
	rawSimple, err := json.Marshal(simple)
	if err != nil {
		return "", false, fmt.Errorf("marshal simplified payload: %w", err)
	}
	if len(rawSimple) > c.cfg.CapacityBytes {
		return "", false, fmt.Errorf("simplified payload is %d bytes, capacity is %d",
			len(rawSimple), c.cfg.CapacityBytes)
	}
	return string(rawSimple), true, nil
}

// Decode parses an optical string back into a payload. A corrupt input yields
// a decode error, never a partial payload.
func (c *Codec) Decode(encoded string) (signal.NegotiationPayload, error) {
	var zero signal.NegotiationPayload

	text := encoded
	if strings.HasPrefix(encoded, CompressedPrefix) {
		data, err := base64.StdEncoding.DecodeString(encoded[len(CompressedPrefix):])
		if err != nil {
			return zero, signal.Decodef(err, "invalid base64 after %q", CompressedPrefix)
		}
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return zero, signal.Decodef(err, "compressed payload is not gzip")
		}
		plain, err := io.ReadAll(zr)
		if cerr := zr.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return zero, signal.Decodef(err, "decompress payload")
		}
		text = string(plain)
	}

	var p signal.NegotiationPayload
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return zero, signal.Decodef(err, "parse payload JSON")
	}
	if dec.More() {
		return zero, signal.Decodef(nil, "trailing data after payload JSON")
	}
	if err := p.Validate(); err != nil {
		return zero, signal.Decodef(err, "decoded payload is invalid")
	}
	return p, nil
}

// compress returns the tagged gzip+base64 form of raw, or ok=false when the
// compressor fails (the caller then just uses the raw form).
func compress(raw []byte) (string, bool) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", false
	}
	if _, err := zw.Write(raw); err != nil {
		return "", false
	}
	if err := zw.Close(); err != nil {
		return "", false
	}
	return CompressedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), true
}

// simplify strips the description down to the lines essential for
// renegotiation and truncates the candidate list.
func simplify(p signal.NegotiationPayload) signal.NegotiationPayload {
	candidates := p.Candidates
	if len(candidates) > maxSimplifiedCandidates {
		candidates = candidates[:maxSimplifiedCandidates]
	}
	return signal.NewPayload(p.Kind, simplifySDP(p.Description), candidates)
}

func simplifySDP(sdp string) string {
	lines := strings.Split(strings.ReplaceAll(sdp, "\r\n", "\n"), "\n")
	essential := make([]string, 0, len(lines))
	for _, line := range lines {
		for _, prefix := range essentialPrefixes {
			if strings.HasPrefix(line, prefix) {
				essential = append(essential, line)
				break
			}
		}
	}
	return strings.Join(essential, "\r\n")
}
