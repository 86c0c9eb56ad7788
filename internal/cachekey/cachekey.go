// Package cachekey computes the deterministic fingerprint that makes two
// elements interchangeable build artifacts.
//
// The contract is strict: given identical inputs, Compute must return
// byte-identical hex digests on any machine. All randomness, wall-clock
// time, map iteration order, and floating point are kept out of the
// canonical document for exactly that reason.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Key is a hex-encoded SHA-256 digest. The zero value is Absent.
type Key string

// Absent is returned when an element cannot yet be fingerprinted, typically
// because one of its sources has not resolved a ref.
const Absent Key = ""

// Input carries the facts that feed a single element's key. ElementName
// identifies the element to callers but is not written into the hashed
// document, so two elements with otherwise identical inputs share a key.
// BuildDepKeys must already be resolved (recursive keys of build
// dependencies, in declaration order); RuntimeDepKeys are included only in
// the StrongKey, never in the build Key, per the core's addressing rule.
type Input struct {
	ElementName       string
	KindID            string
	KindFormatVersion int
	Config            map[string]any // post option-resolution, post substitution
	Sources           []SourceInput
	BuildDepKeys      []Key
	RuntimeDepKeys    []Key
	Variables         map[string]string // project vars affecting the build, env-nocache already filtered
}

// SourceInput is the per-source contribution to the canonical document.
// Ref == "" means unresolved: Compute returns Absent in that case.
type SourceInput struct {
	KindID            string
	KindFormatVersion int
	Ref               string
}

// Engine memoizes key computation within a single scheduler run. Elements
// sharing build dependencies are common in any non-trivial DAG, and the
// recursive walk would otherwise redo the same canonicalization repeatedly.
type Engine struct {
	cache *lru.Cache[string, Key]
}

// NewEngine creates a cache-key engine with a bounded memoization cache.
func NewEngine(size int) *Engine {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, Key](size)
	return &Engine{cache: c}
}

// Compute returns the element's build cache key, or Absent if any source is
// unresolved.
func (e *Engine) Compute(in Input) Key {
	for _, s := range in.Sources {
		if s.Ref == "" {
			return Absent
		}
	}

	return e.memoizedHash(canonicalDocument(in, false))
}

// StrongKey returns the element's strong key, which additionally folds in
// runtime-only dependency keys. It is never consulted for artifact
// addressing; it exists so callers can detect "this element's closure,
// including what it needs at runtime, changed" without recomputing the
// build key's semantics.
func (e *Engine) StrongKey(in Input) Key {
	for _, s := range in.Sources {
		if s.Ref == "" {
			return Absent
		}
	}

	return e.memoizedHash(canonicalDocument(in, true))
}

// memoizedHash digests doc, keyed in the LRU by the full canonical document
// so two Inputs share an entry exactly when they would hash identically —
// never a partial identity that could serve a stale key after a source ref
// or config value changes mid-run.
func (e *Engine) memoizedHash(doc string) Key {
	if e.cache != nil {
		if k, ok := e.cache.Get(doc); ok {
			return k
		}
	}
	sum := sha256.Sum256([]byte(doc))
	k := Key(hex.EncodeToString(sum[:]))
	if e.cache != nil {
		e.cache.Add(doc, k)
	}
	return k
}

// canonicalDocument renders the deterministic textual form of the key
// inputs: sorted mapping keys, UTF-8 strings, decimal integers, no
// floats. A hand-rolled encoder is used rather than encoding/json because
// json's map key ordering, while sorted since Go 1.12, is an implementation
// detail of its own doc comment, not a contract we want to depend on for a
// security-adjacent determinism guarantee that must hold across Go versions.
func canonicalDocument(in Input, strong bool) string {
	var b strings.Builder

	b.WriteString("kind=")
	writeCanonicalString(&b, in.KindID)
	b.WriteString(";kind_version=")
	b.WriteString(strconv.Itoa(in.KindFormatVersion))

	b.WriteString(";config=")
	writeCanonicalValue(&b, in.Config)

	b.WriteString(";sources=[")
	for i, s := range in.Sources {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('{')
		writeCanonicalString(&b, s.KindID)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(s.KindFormatVersion))
		b.WriteByte(':')
		writeCanonicalString(&b, s.Ref)
		b.WriteByte('}')
	}
	b.WriteString("]")

	b.WriteString(";build_deps=[")
	for i, d := range in.BuildDepKeys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeCanonicalString(&b, string(d))
	}
	b.WriteString("]")

	if strong {
		b.WriteString(";runtime_deps=[")
		for i, d := range in.RuntimeDepKeys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalString(&b, string(d))
		}
		b.WriteString("]")
	}

	b.WriteString(";variables=")
	writeCanonicalValue(&b, stringMapToAny(in.Variables))

	return b.String()
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// writeCanonicalValue encodes an arbitrary map/slice/scalar value with
// sorted mapping keys. Only nil, string, bool, int, int64, map[string]any,
// []any and []string are encoded by value. Any other type (float64, uint64
// and the like, which nested config maps decoded from YAML can carry) is not
// rejected: it is written as its type name alone, so two different values of
// such a type encode identically.
func writeCanonicalValue(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		writeCanonicalString(b, val)
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalString(b, k)
			b.WriteByte(':')
			writeCanonicalValue(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalValue(b, e)
		}
		b.WriteByte(']')
	case []string:
		b.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalString(b, e)
		}
		b.WriteByte(']')
	default:
		// Deterministic but explicit about the unsupported type, rather than
		// silently falling back to fmt's non-deterministic formatting rules
		// for some kinds (e.g. pointer addresses).
		b.WriteString(fmt.Sprintf("unsupported(%T)", val))
	}
}

func writeCanonicalString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
}
