package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// AuditRequest: входные данные одного прогона аудита.
// Хотя бы одно из полей обязано быть заполнено.
type AuditRequest struct {
	TargetURL     string `json:"targetURL,omitempty"`
	RepositoryURL string `json:"repositoryURL,omitempty"`
}

// Normalize обрезает пробелы и проверяет формат адресов.
// Возвращает ErrInvalidRequest, если запрос не может быть принят.
func (r AuditRequest) Normalize() (AuditRequest, error) {
	out := AuditRequest{
		TargetURL:     strings.TrimSpace(r.TargetURL),
		RepositoryURL: strings.TrimSpace(r.RepositoryURL),
	}

	if out.TargetURL == "" && out.RepositoryURL == "" {
		return out, fmt.Errorf("%w: provide targetURL or repositoryURL", ErrInvalidRequest)
	}

	if out.TargetURL != "" {
		u, err := url.Parse(out.TargetURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return out, fmt.Errorf("%w: targetURL must be an absolute http(s) URL", ErrInvalidRequest)
		}
	}

	if out.RepositoryURL != "" && !isCloneableURL(out.RepositoryURL) {
		return out, fmt.Errorf("%w: repositoryURL must be an https, ssh or file URL", ErrInvalidRequest)
	}

	return out, nil
}

// HasTarget сообщает, нужно ли запускать нагрузочный тест и браузерный аудит.
func (r AuditRequest) HasTarget() bool { return r.TargetURL != "" }

// HasRepository сообщает, нужно ли запускать статический скан репозитория.
func (r AuditRequest) HasRepository() bool { return r.RepositoryURL != "" }

// Subject: идентификатор цели для брифа и сессии (URL приоритетнее репозитория).
func (r AuditRequest) Subject() string {
	if r.TargetURL != "" {
		return r.TargetURL
	}
	return r.RepositoryURL
}

func isCloneableURL(raw string) bool {
	// scp-подобный синтаксис git@host:org/repo.git
	if strings.HasPrefix(raw, "git@") && strings.Contains(raw, ":") {
		return true
	}
	// Аргументы, начинающиеся с "-", git воспримет как флаги
	if strings.HasPrefix(raw, "-") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "https", "ssh":
		return u.Host != ""
	case "file":
		return u.Path != ""
	default:
		return false
	}
}
