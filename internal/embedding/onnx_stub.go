//go:build !onnx

package embedding

import engineerrors "github.com/shodh/memory-engine/internal/errors"

// newONNXEmbedder is the non-onnx build's stand-in: the real implementation
// lives in onnx.go behind the "onnx" build tag and requires linking against
// github.com/yalue/onnxruntime_go and a local libonnxruntime.so.
func newONNXEmbedder(modelPath, tokenizerPath string, dim int) (Embedder, error) {
	return nil, engineerrors.ErrEmbedderUnavailable
}
