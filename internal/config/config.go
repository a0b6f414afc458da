// Package config defines the externally managed worker configuration the
// dispatcher consumes read-only: which worker types exist and which content
// types each one is willing to process.
package config

// WorkerConfig describes one worker type and the content types it consumes.
type WorkerConfig struct {
	// WorkerType names the worker fleet, e.g. "geo-extractor".
	WorkerType string `yaml:"worker_type"`

	// ContentTypes lists the routing tags this worker type processes.
	ContentTypes []string `yaml:"content_types"`
}

// ConsumesContentType reports whether the worker config covers the given
// routing tag.
func (c WorkerConfig) ConsumesContentType(contentType string) bool {
	for _, ct := range c.ContentTypes {
		if ct == contentType {
			return true
		}
	}
	return false
}

// Config represents the top-level worker configuration document.
type Config struct {
	Workers []WorkerConfig `yaml:"workers"`
}
