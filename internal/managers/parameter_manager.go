// Package managers adapts the external collaborators (parameter store, bulk
// inference backend, outcome store) onto the domain interfaces.
package managers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"

	"github.com/sifthq/sift/internal/domain"
)

// SSMAPI is the slice of the parameter store API the manager needs.
type SSMAPI interface {
	GetParameterWithContext(ctx aws.Context, input *ssm.GetParameterInput, opts ...request.Option) (*ssm.GetParameterOutput, error)
	PutParameterWithContext(ctx aws.Context, input *ssm.PutParameterInput, opts ...request.Option) (*ssm.PutParameterOutput, error)
}

type parameterManager struct {
	client SSMAPI
	prefix string
}

type ParameterManagerDependencies struct {
	Client SSMAPI
	// Prefix names the parameter family: <prefix>-mode and
	// <prefix>-events-since.
	Prefix string
}

func NewParameterManager(deps ParameterManagerDependencies) domain.ParameterStore {
	return &parameterManager{
		client: deps.Client,
		prefix: strings.TrimSuffix(deps.Prefix, "-"),
	}
}

// NewSSMClient builds the real parameter store client from an AWS session.
func NewSSMClient(sess *session.Session) SSMAPI {
	return ssm.New(sess)
}

func (m *parameterManager) modeParameter() string {
	return m.prefix + "-mode"
}

func (m *parameterManager) eventsSinceParameter() string {
	return m.prefix + "-events-since"
}

func (m *parameterManager) Mode(ctx context.Context) (domain.Mode, error) {
	value, err := m.get(ctx, m.modeParameter())
	if err != nil {
		return "", err
	}

	mode, err := domain.ParseMode(value)
	if err != nil {
		return "", fmt.Errorf("parameter %s: %w", m.modeParameter(), err)
	}

	return mode, nil
}

func (m *parameterManager) SetMode(ctx context.Context, mode domain.Mode) error {
	if _, err := domain.ParseMode(mode.String()); err != nil {
		return err
	}
	return m.put(ctx, m.modeParameter(), mode.String())
}

func (m *parameterManager) EventsSince(ctx context.Context) (time.Time, error) {
	value, err := m.get(ctx, m.eventsSinceParameter())
	if err != nil {
		if errors.Is(err, errParameterMissing) {
			// An absent watermark means the window is open-ended.
			return time.Time{}, nil
		}
		return time.Time{}, err
	}

	since, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parameter %s holds no timestamp: %w", m.eventsSinceParameter(), err)
	}

	return since, nil
}

func (m *parameterManager) SetEventsSince(ctx context.Context, since time.Time) error {
	return m.put(ctx, m.eventsSinceParameter(), since.UTC().Format(time.RFC3339))
}

// errParameterMissing distinguishes an absent parameter from a transport
// failure inside this package. Callers translate it per parameter.
var errParameterMissing = errors.New("parameter is not set")

func (m *parameterManager) get(ctx context.Context, name string) (string, error) {
	out, err := m.client.GetParameterWithContext(ctx, &ssm.GetParameterInput{
		Name: aws.String(name),
	})
	if err != nil {
		var awsErr awserr.Error
		if errors.As(err, &awsErr) && awsErr.Code() == ssm.ErrCodeParameterNotFound {
			if name == m.modeParameter() {
				return "", domain.ErrModeNotSet
			}
			return "", errParameterMissing
		}
		return "", fmt.Errorf("failed to read parameter %s: %w", name, err)
	}

	if out.Parameter == nil || out.Parameter.Value == nil || *out.Parameter.Value == "" {
		if name == m.modeParameter() {
			return "", domain.ErrModeNotSet
		}
		return "", errParameterMissing
	}

	return *out.Parameter.Value, nil
}

func (m *parameterManager) put(ctx context.Context, name, value string) error {
	_, err := m.client.PutParameterWithContext(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      aws.String(ssm.ParameterTypeString),
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to write parameter %s: %w", name, err)
	}
	return nil
}
