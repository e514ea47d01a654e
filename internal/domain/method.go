package domain

import (
	"errors"
	"strings"
	"time"
)

// Method is the immutable identity of a workflow definition.
//
// LastRunSetID is a weak back-reference kept for display; it is overwritten on
// every new run set and never implies ownership.
type Method struct {
	ID           string
	Name         string
	Description  string
	CreatedAt    time.Time
	LastRunSetID string
	LastRunAt    *time.Time
	Source       string
	SourceURL    string
}

// MethodVersion is one concrete, runnable revision of a Method.
type MethodVersion struct {
	ID           string
	MethodID     string
	Name         string
	Description  string
	CreatedAt    time.Time
	LastRunSetID string
	LastRunAt    *time.Time
	URL          string
}

func (m Method) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return errors.New("method id is required")
	}
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("method name is required")
	}
	return nil
}

func (v MethodVersion) Validate() error {
	if strings.TrimSpace(v.ID) == "" {
		return errors.New("method version id is required")
	}
	if strings.TrimSpace(v.MethodID) == "" {
		return errors.New("method id is required")
	}
	if strings.TrimSpace(v.URL) == "" {
		return errors.New("method version url is required")
	}
	return nil
}
