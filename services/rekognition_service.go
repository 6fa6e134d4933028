package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

// RekognitionAPI is the slice of the Rekognition client the provider uses.
type RekognitionAPI interface {
	DetectLabels(ctx context.Context, in *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

// RekognitionVisionProvider names the product from image labels. Labels say
// nothing about healthiness, so the score is always neutral.
type RekognitionVisionProvider struct {
	client RekognitionAPI
}

// genericLabels are too broad to name a product.
var genericLabels = map[string]bool{
	"food": true, "snack": true, "meal": true, "dish": true, "plant": true,
	"produce": true, "fruit": true, "vegetable": true, "beverage": true, "drink": true,
	"text": true, "label": true, "packaging": true, "package": true, "box": true,
	"bottle": true, "can": true, "tin": true, "person": true, "hand": true,
}

// NewRekognitionVisionProvider loads AWS config for region. An empty region
// gives a provider that always reports AWS_REGION is missing.
func NewRekognitionVisionProvider(ctx context.Context, region string) (*RekognitionVisionProvider, error) {
	if region == "" {
		return &RekognitionVisionProvider{}, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return &RekognitionVisionProvider{client: rekognition.NewFromConfig(cfg)}, nil
}

func NewRekognitionVisionProviderWithClient(client RekognitionAPI) *RekognitionVisionProvider {
	return &RekognitionVisionProvider{client: client}
}

func (p *RekognitionVisionProvider) Name() string { return "rekognition" }

func (p *RekognitionVisionProvider) Analyze(ctx context.Context, image []byte) (*VisionGuess, error) {
	if p.client == nil {
		return nil, errors.New("AWS_REGION is missing")
	}
	if len(image) == 0 {
		return nil, errors.New("empty image")
	}
	out, err := p.client.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image:         &types.Image{Bytes: image},
		MaxLabels:     aws.Int32(10),
		MinConfidence: aws.Float32(75),
	})
	if err != nil {
		return nil, err
	}

	var labels []string
	for _, l := range out.Labels {
		if l.Name != nil {
			labels = append(labels, *l.Name)
		}
	}
	if len(labels) == 0 {
		return nil, errors.New("no labels detected")
	}

	product := labels[0]
	for _, l := range labels {
		if !genericLabels[strings.ToLower(l)] {
			product = l
			break
		}
	}
	return &VisionGuess{
		Product:     product,
		HealthScore: 50,
		Verdict:     "WARNING",
		Warnings:    []string{"Identified from image labels only: " + strings.Join(labels, ", ")},
	}, nil
}
