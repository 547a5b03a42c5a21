//go:build onnx

package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	engineerrors "github.com/shodh/memory-engine/internal/errors"
)

// ONNXEmbedder loads a real all-MiniLM-L6-v2-class ONNX model and a BERT
// WordPiece tokenizer.json from local files, both supplied by an external
// model-download collaborator (spec §1: model file download is out of
// scope for this module). It never makes a network call itself.
type ONNXEmbedder struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *bertTokenizer
	dim       int
}

const onnxMaxSeqLen = 128

func newONNXEmbedder(modelPath, tokenizerPath string, dim int) (Embedder, error) {
	if modelPath == "" || tokenizerPath == "" {
		return nil, engineerrors.ErrEmbedderUnavailable
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: model file: %v", engineerrors.ErrEmbedderUnavailable, err)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("%w: initialize onnxruntime: %v", engineerrors.ErrEmbedderUnavailable, err)
	}

	tokenizer, err := loadBERTTokenizer(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load tokenizer: %v", engineerrors.ErrEmbedderUnavailable, err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create onnx session: %v", engineerrors.ErrEmbedderUnavailable, err)
	}

	return &ONNXEmbedder{session: session, tokenizer: tokenizer, dim: dim}, nil
}

func (e *ONNXEmbedder) Model() string    { return "all-minilm-l6-v2-onnx" }
func (e *ONNXEmbedder) Dimension() int   { return e.dim }
func (e *ONNXEmbedder) ModelLoaded() bool { return true }

func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	tokens := e.tokenizer.tokenize(text)

	inputIDs := make([]int64, onnxMaxSeqLen)
	attentionMask := make([]int64, onnxMaxSeqLen)
	tokenTypeIDs := make([]int64, onnxMaxSeqLen)

	inputIDs[0] = int64(e.tokenizer.clsToken)
	attentionMask[0] = 1

	tokenLen := len(tokens)
	if tokenLen > onnxMaxSeqLen-2 {
		tokenLen = onnxMaxSeqLen - 2
	}
	for i := 0; i < tokenLen; i++ {
		inputIDs[i+1] = tokens[i]
		attentionMask[i+1] = 1
	}
	endPos := tokenLen + 1
	inputIDs[endPos] = int64(e.tokenizer.sepToken)
	attentionMask[endPos] = 1

	shape := ort.NewShape(1, int64(onnxMaxSeqLen))
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, err
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, err
	}
	defer maskTensor.Destroy()
	typeTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, err
	}
	defer typeTensor.Destroy()

	inputs := []ort.Value{idsTensor, maskTensor, typeTensor}
	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected onnx output tensor type")
	}
	data := out.GetData()
	shapeOut := out.GetShape()
	if len(shapeOut) != 3 {
		return nil, fmt.Errorf("unexpected onnx output shape: %v", shapeOut)
	}
	seqLen := int(shapeOut[1])
	hidden := int(shapeOut[2])
	if hidden != e.dim {
		return nil, fmt.Errorf("%w: model hidden size %d != configured dim %d", engineerrors.ErrDimensionMismatch, hidden, e.dim)
	}

	embedding := make([]float32, hidden)
	var attended float32
	for i := 0; i < seqLen; i++ {
		if attentionMask[i] == 0 {
			continue
		}
		attended++
		offset := i * hidden
		for j := 0; j < hidden; j++ {
			embedding[j] += data[offset+j]
		}
	}
	if attended > 0 {
		for j := range embedding {
			embedding[j] /= attended
		}
	}
	l2Normalize(embedding)
	return embedding, nil
}

func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// bertTokenizer is a minimal WordPiece tokenizer sufficient to feed a
// HuggingFace-exported MiniLM ONNX graph: greedy longest-match-first
// subword lookup against the model.vocab table of the tokenizer JSON file,
// falling back to [UNK].
type bertTokenizer struct {
	vocab     map[string]int
	clsToken  int
	sepToken  int
	unkToken  int
}

func loadBERTTokenizer(path string) (*bertTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &bertTokenizer{
		vocab:    doc.Model.Vocab,
		clsToken: 101,
		sepToken: 102,
		unkToken: 100,
	}, nil
}

func (t *bertTokenizer) tokenize(text string) []int64 {
	text = strings.ToLower(text)
	words := strings.Fields(text)
	tokens := make([]int64, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'")
		if w == "" {
			continue
		}
		if id, ok := t.vocab[w]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		tokens = append(tokens, t.wordpiece(w)...)
	}
	return tokens
}

// wordpiece greedily splits an out-of-vocab word into the longest known
// subwords, prefixing continuations with "##" per BERT convention.
func (t *bertTokenizer) wordpiece(word string) []int64 {
	var out []int64
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				out = append(out, int64(id))
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			out = append(out, int64(t.unkToken))
			start++
		}
	}
	return out
}

