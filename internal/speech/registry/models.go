package registry

import "github.com/voicetyped/streamasr/internal/speech/model"

// Models is the global model backend registry. Backends register from init
// with a flat string config, the same way they are configured from env.
var Models = New[map[string]string, model.Model]()
