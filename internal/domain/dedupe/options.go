package dedupe

// Option configures the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithMaxSize bounds the number of pending keys. Zero or negative is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}

// WithOnEvict registers fn to be called with each key released to make
// room. A released key is no longer coalesced, so a second request for it
// may be scheduled. fn runs with the deduper locked and must not call back
// into it.
func WithOnEvict(fn func(key string)) Option {
	return func(d *inMemoryDeduper) {
		d.onEvict = fn
	}
}
