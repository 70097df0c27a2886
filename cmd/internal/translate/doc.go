// Package translate wraps the machine-translation collaborators used by the
// message pipeline: language detection and text translation.
//
// The concrete backend is Google Cloud Translation v2 over HTTP, guarded by
// retries and a circuit breaker. Translation is best-effort everywhere it is
// used; callers degrade to the untranslated text when this package fails.
package translate
