// Package methods exposes the method catalog and seeds it from YAML.
package methods

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/animus-labs/cbas-go/internal/domain"
	"github.com/animus-labs/cbas-go/internal/repo"
)

// MethodWithVersions is a catalog entry.
type MethodWithVersions struct {
	Method   domain.Method
	Versions []domain.MethodVersion
}

type Service struct {
	methods repo.MethodRepository
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

func New(methods repo.MethodRepository, logger *slog.Logger) *Service {
	if methods == nil {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		methods: methods,
		logger:  logger.With("component", "methods"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// List returns methods, with their versions when showVersions is set.
func (s *Service) List(ctx context.Context, showVersions bool, limit int) ([]MethodWithVersions, error) {
	if s == nil {
		return nil, errors.New("methods service not initialized")
	}
	methods, err := s.methods.ListMethods(ctx, repo.MethodFilter{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list methods: %w", err)
	}
	out := make([]MethodWithVersions, 0, len(methods))
	for _, method := range methods {
		entry := MethodWithVersions{Method: method}
		if showVersions {
			versions, err := s.methods.ListMethodVersions(ctx, method.ID)
			if err != nil {
				return nil, fmt.Errorf("list versions for method %s: %w", method.ID, err)
			}
			entry.Versions = versions
		}
		out = append(out, entry)
	}
	return out, nil
}

// GetVersion returns a single method version together with its method.
func (s *Service) GetVersion(ctx context.Context, methodVersionID string) (MethodWithVersions, error) {
	if s == nil {
		return MethodWithVersions{}, errors.New("methods service not initialized")
	}
	version, err := s.methods.GetMethodVersion(ctx, strings.TrimSpace(methodVersionID))
	if err != nil {
		return MethodWithVersions{}, err
	}
	method, err := s.methods.GetMethod(ctx, version.MethodID)
	if err != nil {
		return MethodWithVersions{}, err
	}
	return MethodWithVersions{Method: method, Versions: []domain.MethodVersion{version}}, nil
}

type seedFile struct {
	Methods []seedMethod `yaml:"methods"`
}

type seedMethod struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Source      string        `yaml:"source"`
	SourceURL   string        `yaml:"source_url"`
	Versions    []seedVersion `yaml:"versions"`
}

type seedVersion struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	URL         string `yaml:"url"`
}

// SeedResult counts what a seed pass created.
type SeedResult struct {
	MethodsCreated  int
	VersionsCreated int
}

// Seed registers the methods described in r. Methods and versions that already
// exist by name are left untouched.
func (s *Service) Seed(ctx context.Context, r io.Reader) (SeedResult, error) {
	if s == nil {
		return SeedResult{}, errors.New("methods service not initialized")
	}
	var file seedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return SeedResult{}, fmt.Errorf("decode seed file: %w", err)
	}

	var result SeedResult
	for i, entry := range file.Methods {
		if strings.TrimSpace(entry.Name) == "" {
			return result, fmt.Errorf("methods[%d]: name is required", i)
		}
		if strings.TrimSpace(entry.Source) == "" {
			return result, fmt.Errorf("methods[%d]: source is required", i)
		}
		methodID, created, err := s.ensureMethod(ctx, entry)
		if err != nil {
			return result, err
		}
		if created {
			result.MethodsCreated++
		}

		existing, err := s.methods.ListMethodVersions(ctx, methodID)
		if err != nil {
			return result, fmt.Errorf("list versions for method %s: %w", entry.Name, err)
		}
		known := make(map[string]struct{}, len(existing))
		for _, version := range existing {
			known[version.Name] = struct{}{}
		}
		for j, v := range entry.Versions {
			if strings.TrimSpace(v.Name) == "" || strings.TrimSpace(v.URL) == "" {
				return result, fmt.Errorf("methods[%d].versions[%d]: name and url are required", i, j)
			}
			if _, ok := known[v.Name]; ok {
				continue
			}
			err := s.methods.CreateMethodVersion(ctx, domain.MethodVersion{
				ID:          s.newID(),
				MethodID:    methodID,
				Name:        v.Name,
				Description: v.Description,
				CreatedAt:   s.now().UTC(),
				URL:         v.URL,
			})
			if errors.Is(err, repo.ErrConflict) {
				continue
			}
			if err != nil {
				return result, fmt.Errorf("create version %s of %s: %w", v.Name, entry.Name, err)
			}
			result.VersionsCreated++
		}
	}
	s.logger.Info("methods seeded", "methods_created", result.MethodsCreated, "versions_created", result.VersionsCreated)
	return result, nil
}

func (s *Service) ensureMethod(ctx context.Context, entry seedMethod) (string, bool, error) {
	method := domain.Method{
		ID:          s.newID(),
		Name:        entry.Name,
		Description: entry.Description,
		CreatedAt:   s.now().UTC(),
		Source:      entry.Source,
		SourceURL:   entry.SourceURL,
	}
	err := s.methods.CreateMethod(ctx, method)
	if err == nil {
		return method.ID, true, nil
	}
	if !errors.Is(err, repo.ErrConflict) {
		return "", false, fmt.Errorf("create method %s: %w", entry.Name, err)
	}
	existing, err := s.methods.ListMethods(ctx, repo.MethodFilter{Name: entry.Name, Limit: 1})
	if err != nil {
		return "", false, fmt.Errorf("list methods: %w", err)
	}
	if len(existing) == 0 {
		return "", false, fmt.Errorf("method %s: %w", entry.Name, repo.ErrNotFound)
	}
	return existing[0].ID, false, nil
}
