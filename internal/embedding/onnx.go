//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/assethub/internal/apperrors"
)

// ClipEmbedder runs the CLIP visual and text encoders with ONNX Runtime.
// It requires CGO and the onnxruntime shared library.
type ClipEmbedder struct {
	cfg       ClipConfig
	tokenizer Tokenizer

	visualMu      sync.Mutex
	visualSession *ort.AdvancedSession
	pixelTensor   *ort.Tensor[float32]
	imageOut      *ort.Tensor[float32]

	textMu        sync.Mutex
	textSession   *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	textOut       *ort.Tensor[float32]
}

// NewClipEmbedder loads both encoders. InitializeEnvironment is called if not already done.
func NewClipEmbedder(cfg ClipConfig) (*ClipEmbedder, error) {
	cfg = cfg.withDefaults()
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	tokenizer, err := NewClipTokenizer(cfg.VocabPath)
	if err != nil {
		return nil, err
	}
	e := &ClipEmbedder{cfg: cfg, tokenizer: tokenizer}
	if err := e.initVisual(); err != nil {
		_ = e.Close()
		return nil, err
	}
	if err := e.initText(); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *ClipEmbedder) initVisual() error {
	size := int64(e.cfg.ImageSize)
	var err error
	e.pixelTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	e.imageOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.cfg.Dimensions)))
	if err != nil {
		return fmt.Errorf("failed to create image_embeds tensor: %w", err)
	}
	e.visualSession, err = ort.NewAdvancedSession(
		e.cfg.VisualModelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{e.pixelTensor},
		[]ort.ArbitraryTensor{e.imageOut},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create visual session: %w", err)
	}
	return nil
}

func (e *ClipEmbedder) initText() error {
	shape := ort.NewShape(1, int64(e.cfg.MaxTokens))
	var err error
	e.inputIDs, err = ort.NewEmptyTensor[int64](shape)
	if err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	e.attentionMask, err = ort.NewEmptyTensor[int64](shape)
	if err != nil {
		return fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	e.textOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.cfg.Dimensions)))
	if err != nil {
		return fmt.Errorf("failed to create text_embeds tensor: %w", err)
	}
	e.textSession, err = ort.NewAdvancedSession(
		e.cfg.TextModelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"text_embeds"},
		[]ort.ArbitraryTensor{e.inputIDs, e.attentionMask},
		[]ort.ArbitraryTensor{e.textOut},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create text session: %w", err)
	}
	return nil
}

// EmbedImage runs the visual encoder on one image.
func (e *ClipEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	pixels, err := PreprocessImage(data, e.cfg.ImageSize)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.visualMu.Lock()
	defer e.visualMu.Unlock()

	copy(e.pixelTensor.GetData(), pixels)
	if err := e.visualSession.Run(); err != nil {
		return nil, apperrors.Transient(fmt.Errorf("visual inference failed: %w", err))
	}
	out := make([]float32, e.cfg.Dimensions)
	copy(out, e.imageOut.GetData())
	return finalize(out)
}

// EmbedText runs the text encoder on one query.
func (e *ClipEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	ids, mask := e.tokenizer.Tokenize(text, e.cfg.MaxTokens)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.textMu.Lock()
	defer e.textMu.Unlock()

	copy(e.inputIDs.GetData(), ids)
	copy(e.attentionMask.GetData(), mask)
	if err := e.textSession.Run(); err != nil {
		return nil, apperrors.Transient(fmt.Errorf("text inference failed: %w", err))
	}
	out := make([]float32, e.cfg.Dimensions)
	copy(out, e.textOut.GetData())
	return finalize(out)
}

// EmbedImages calls EmbedImage for each image.
func (e *ClipEmbedder) EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error) {
	return embedEach(ctx, e, images)
}

// Dimensions returns the embedding dimension.
func (e *ClipEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Close destroys both sessions and their tensors.
func (e *ClipEmbedder) Close() error {
	var err error
	if e.visualSession != nil {
		err = e.visualSession.Destroy()
		e.visualSession = nil
	}
	if e.textSession != nil {
		if terr := e.textSession.Destroy(); err == nil {
			err = terr
		}
		e.textSession = nil
	}
	if e.pixelTensor != nil {
		_ = e.pixelTensor.Destroy()
		e.pixelTensor = nil
	}
	if e.imageOut != nil {
		_ = e.imageOut.Destroy()
		e.imageOut = nil
	}
	if e.inputIDs != nil {
		_ = e.inputIDs.Destroy()
		e.inputIDs = nil
	}
	if e.attentionMask != nil {
		_ = e.attentionMask.Destroy()
		e.attentionMask = nil
	}
	if e.textOut != nil {
		_ = e.textOut.Destroy()
		e.textOut = nil
	}
	return err
}
