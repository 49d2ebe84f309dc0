// Package chatbot resolves chatbot profiles from the on-disk data directory
// written by the chatbot builder.
package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Rrens/chatbot-insights/internal/domain"
)

// Profile is the subset of a chatbot's metadata.json used to answer visitors.
type Profile struct {
	ID           string `json:"id"`
	BusinessName string `json:"business_name"`
	BusinessType string `json:"business_type"`
	ChatbotName  string `json:"chatbot_name"`
	ChatbotType  string `json:"chatbot_type"`
	Icon         string `json:"icon,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// Category maps the free-form chatbot_type onto a known category.
func (p *Profile) Category() domain.ChatbotCategory {
	return domain.ParseChatbotCategory(p.ChatbotType)
}

// RolePrompt returns the system prompt for this chatbot.
func (p *Profile) RolePrompt() string {
	return p.Category().RolePrompt(p.BusinessName)
}

// Directory looks chatbot profiles up by id.
type Directory interface {
	Lookup(ctx context.Context, chatbotID string) (*Profile, error)
}

// FileDirectory reads <root>/chatbots/<id>/metadata.json.
type FileDirectory struct {
	root string
}

// NewFileDirectory creates a directory rooted at dataDir.
func NewFileDirectory(dataDir string) *FileDirectory {
	return &FileDirectory{root: dataDir}
}

func (d *FileDirectory) Lookup(ctx context.Context, chatbotID string) (*Profile, error) {
	if !validID(chatbotID) {
		return nil, domain.ErrChatbotNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(d.root, "chatbots", chatbotID, "metadata.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrChatbotNotFound
		}
		return nil, fmt.Errorf("failed to read chatbot metadata: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse chatbot metadata: %w", err)
	}
	p.ID = chatbotID
	return &p, nil
}

// validID keeps ids from escaping the data directory.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}
