package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"bioguard/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVision struct {
	name  string
	guess *VisionGuess
	err   error
	calls int
}

func (f *fakeVision) Name() string { return f.name }

func (f *fakeVision) Analyze(ctx context.Context, _ []byte) (*VisionGuess, error) {
	f.calls++
	return f.guess, f.err
}

// hangingVision never answers on its own; only its context ends the call.
type hangingVision struct{ name string }

func (h hangingVision) Name() string { return h.name }

func (h hangingVision) Analyze(ctx context.Context, _ []byte) (*VisionGuess, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestVisionOracle_BuildOrder(t *testing.T) {
	providers := []VisionProvider{
		&fakeVision{name: "gemini"}, &fakeVision{name: "openai"}, &fakeVision{name: "rekognition"},
	}

	t.Run("preferred first then configured then mock", func(t *testing.T) {
		o := NewVisionOracle(providers, []string{"gemini", "openai", "rekognition"}, true, 0, nil)
		assert.Equal(t, []string{"openai", "gemini", "rekognition", "mock"}, o.BuildOrder("OpenAI"))
	})

	t.Run("unknown preferred is ignored", func(t *testing.T) {
		o := NewVisionOracle(providers, []string{"gemini", "openai"}, false, 0, nil)
		assert.Equal(t, []string{"gemini", "openai"}, o.BuildOrder("claude"))
	})

	t.Run("mock as preferred still goes last", func(t *testing.T) {
		o := NewVisionOracle(providers, []string{"gemini"}, true, 0, nil)
		assert.Equal(t, []string{"gemini", "mock"}, o.BuildOrder("mock"))
	})

	t.Run("unregistered names in the configured order are skipped", func(t *testing.T) {
		o := NewVisionOracle(providers[:1], []string{"openai", "gemini"}, false, 0, nil)
		assert.Equal(t, []string{"gemini"}, o.BuildOrder(""))
	})
}

func TestVisionOracle_Analyze(t *testing.T) {
	t.Run("first success is sanitized", func(t *testing.T) {
		gem := &fakeVision{name: "gemini", guess: &VisionGuess{Product: "  ", HealthScore: 140, Verdict: "danger", Warnings: []string{" ", "salty"}}}
		oa := &fakeVision{name: "openai"}
		o := NewVisionOracle([]VisionProvider{gem, oa}, []string{"gemini", "openai"}, false, 0, nil)

		g, errs := o.Analyze(context.Background(), []byte{1}, "")
		require.NotNil(t, g)
		assert.Empty(t, errs)
		assert.Equal(t, "Unknown", g.Product)
		assert.Equal(t, 100, g.HealthScore)
		assert.Equal(t, models.VerdictDanger, g.Verdict)
		assert.Equal(t, []string{"salty"}, g.Warnings)
		assert.Equal(t, "gemini", g.Provider)
		assert.Equal(t, 0, oa.calls)
	})

	t.Run("falls through and reports failures", func(t *testing.T) {
		gem := &fakeVision{name: "gemini", err: errors.New("GEMINI_API_KEY is missing")}
		oa := &fakeVision{name: "openai", guess: &VisionGuess{Product: "Cola", HealthScore: 20, Verdict: "WARNING"}}
		o := NewVisionOracle([]VisionProvider{gem, oa}, []string{"gemini", "openai"}, false, 0, nil)

		g, errs := o.Analyze(context.Background(), []byte{1}, "")
		require.NotNil(t, g)
		assert.Equal(t, "Cola", g.Product)
		assert.Equal(t, []string{"gemini: GEMINI_API_KEY is missing"}, errs)
	})

	t.Run("mock carries earlier errors in its warnings", func(t *testing.T) {
		gem := &fakeVision{name: "gemini", err: errors.New("GEMINI_API_KEY is missing")}
		o := NewVisionOracle([]VisionProvider{gem}, []string{"gemini"}, true, 0, nil)

		g, _ := o.Analyze(context.Background(), []byte{1}, "")
		require.NotNil(t, g)
		assert.Equal(t, "Mock Snack", g.Product)
		assert.Equal(t, 72, g.HealthScore)
		assert.Equal(t, []string{"High sugar", "Moderate sodium", "gemini: GEMINI_API_KEY is missing"}, g.Warnings)
	})

	t.Run("all fail", func(t *testing.T) {
		gem := &fakeVision{name: "gemini", err: errors.New("boom")}
		oa := &fakeVision{name: "openai", err: errors.New("quota")}
		o := NewVisionOracle([]VisionProvider{gem, oa}, []string{"gemini", "openai"}, false, 0, nil)

		g, errs := o.Analyze(context.Background(), []byte{1}, "")
		assert.Nil(t, g)
		assert.Equal(t, []string{"gemini: boom", "openai: quota"}, errs)
	})

	t.Run("hung provider times out and the chain moves on", func(t *testing.T) {
		oa := &fakeVision{name: "openai", guess: &VisionGuess{Product: "Cola", HealthScore: 20, Verdict: "WARNING"}}
		o := NewVisionOracle([]VisionProvider{hangingVision{name: "rekognition"}, oa}, []string{"rekognition", "openai"}, false, 20*time.Millisecond, nil)

		start := time.Now()
		g, errs := o.Analyze(context.Background(), []byte{1}, "")
		require.NotNil(t, g)
		assert.Equal(t, "openai", g.Provider)
		assert.Equal(t, []string{"rekognition: timed out after 20ms"}, errs)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("hung provider falls back to mock", func(t *testing.T) {
		o := NewVisionOracle([]VisionProvider{hangingVision{name: "gemini"}}, []string{"gemini"}, true, 20*time.Millisecond, nil)

		g, errs := o.Analyze(context.Background(), []byte{1}, "")
		require.NotNil(t, g)
		assert.Equal(t, MockProviderName, g.Provider)
		assert.Equal(t, []string{"gemini: timed out after 20ms"}, errs)
	})

	t.Run("no providers at all", func(t *testing.T) {
		o := NewVisionOracle(nil, nil, false, 0, nil)
		g, errs := o.Analyze(context.Background(), []byte{1}, "")
		assert.Nil(t, g)
		assert.Equal(t, []string{"No provider succeeded"}, errs)
	})
}

func TestParseGuessJSON(t *testing.T) {
	g, err := parseGuessJSON("```json\n{\"product\":\"Oat Bar\",\"health_score\":\"64.6\",\"verdict\":\"safe\",\"warnings\":[],\"ingredients\":[\"oats\",\"honey\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Oat Bar", g.Product)
	assert.Equal(t, 65, g.HealthScore)
	assert.Equal(t, []string{"oats", "honey"}, g.Ingredients)

	_, err = parseGuessJSON("I cannot see any food here.")
	assert.Error(t, err)

	_, err = parseGuessJSON(`{"product":"x"}`)
	assert.Error(t, err)
}

func TestOpenAIVisionProvider(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := NewOpenAIVisionProvider("", "", "", time.Second).Analyze(context.Background(), []byte{1})
		assert.EqualError(t, err, "OPENAI_API_KEY is missing")
	})

	t.Run("parses the chat completion", func(t *testing.T) {
		srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), "data:image/")
			_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"{\"product\":\"Granola\",\"health_score\":70,\"verdict\":\"SAFE\",\"warnings\":[\"contains nuts\"]}"}}]}`)
		})
		g, err := NewOpenAIVisionProvider("sk-test", "", srv.URL, time.Second).Analyze(context.Background(), []byte("\xff\xd8\xff"))
		require.NoError(t, err)
		assert.Equal(t, "Granola", g.Product)
		assert.Equal(t, 70, g.HealthScore)
	})

	t.Run("api error", func(t *testing.T) {
		srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"message":"Rate limit reached"}}`)
		})
		_, err := NewOpenAIVisionProvider("sk", "", srv.URL, time.Second).Analyze(context.Background(), []byte{1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Rate limit reached")
	})
}

func TestGeminiVisionProvider(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := NewGeminiVisionProvider("", "", "", time.Second).Analyze(context.Background(), []byte{1})
		assert.EqualError(t, err, "GEMINI_API_KEY is missing")
	})

	t.Run("parses candidates", func(t *testing.T) {
		srv := jsonServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-1.5-flash:generateContent"))
			assert.Equal(t, "g-key", r.URL.Query().Get("key"))
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), `"inline_data"`)
			_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"{\"product\":\"Crisps\",\"health_score\":35,\"verdict\":\"WARNING\",\"warnings\":[\"high sodium\"],\"ingredients\":[\"potato\",\"salt\"]}"}]}}]}`)
		})
		g, err := NewGeminiVisionProvider("g-key", "", srv.URL, time.Second).Analyze(context.Background(), []byte{1})
		require.NoError(t, err)
		assert.Equal(t, "Crisps", g.Product)
		assert.Equal(t, []string{"potato", "salt"}, g.Ingredients)
	})
}

type fakeRekognition struct {
	labels []string
	err    error
}

func (f fakeRekognition) DetectLabels(ctx context.Context, in *rekognition.DetectLabelsInput, _ ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := &rekognition.DetectLabelsOutput{}
	for _, l := range f.labels {
		out.Labels = append(out.Labels, types.Label{Name: aws.String(l), Confidence: aws.Float32(90)})
	}
	return out, nil
}

func TestRekognitionVisionProvider(t *testing.T) {
	t.Run("missing region", func(t *testing.T) {
		p, err := NewRekognitionVisionProvider(context.Background(), "")
		require.NoError(t, err)
		_, err = p.Analyze(context.Background(), []byte{1})
		assert.EqualError(t, err, "AWS_REGION is missing")
	})

	t.Run("first specific label names the product", func(t *testing.T) {
		p := NewRekognitionVisionProviderWithClient(fakeRekognition{labels: []string{"Food", "Snack", "Chocolate", "Candy"}})
		g, err := p.Analyze(context.Background(), []byte{1})
		require.NoError(t, err)
		assert.Equal(t, "Chocolate", g.Product)
		assert.Equal(t, 50, g.HealthScore)
	})

	t.Run("no labels", func(t *testing.T) {
		p := NewRekognitionVisionProviderWithClient(fakeRekognition{})
		_, err := p.Analyze(context.Background(), []byte{1})
		assert.Error(t, err)
	})
}
