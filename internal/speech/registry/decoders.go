package registry

import "github.com/voicetyped/streamasr/internal/speech/decoder"

// Decoders is the global decoding-method registry.
var Decoders = New[decoder.Options, decoder.Decoder]()
