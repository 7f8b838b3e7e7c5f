package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skein-ai/skein/pkg/models"
)

// DefaultProjectDir is the directory slug of the built-in project. It is
// seeded on first start and can never be deleted; tools and prompts of other
// projects fall back to it.
const DefaultProjectDir = "default"

// ProjectService manages project rows and their on-disk workspace layout
// under the user directory: user/<dir>/{agents, tools, prompts}.
type ProjectService struct {
	db      *sql.DB
	userDir string
}

// NewProjectService creates a ProjectService rooted at userDir.
func NewProjectService(db *sql.DB, userDir string) *ProjectService {
	return &ProjectService{db: db, userDir: userDir}
}

// UserDir returns the root directory holding all project workspaces.
func (s *ProjectService) UserDir() string {
	return s.userDir
}

// ProjectPath returns the workspace directory of a project.
func (s *ProjectService) ProjectPath(projectDir string) string {
	return filepath.Join(s.userDir, projectDir)
}

// EnsureDefaultProject seeds the "default" project row and directories if
// they do not exist yet.
func (s *ProjectService) EnsureDefaultProject(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO projects (project_name, project_dir, created_at) VALUES (?, ?, ?)`,
		DefaultProjectDir, DefaultProjectDir, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("seed default project: %w", err)
	}
	return s.createProjectDirs(DefaultProjectDir)
}

// CreateProject inserts a project row under a collision-free slug and lays
// out its workspace directories.
func (s *ProjectService) CreateProject(ctx context.Context, projectName string) (*models.Project, error) {
	if strings.TrimSpace(projectName) == "" {
		return nil, NewValidationError("project_name", "must not be empty")
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projects WHERE project_name = ?`, projectName).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check project name: %w", err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("project %q: %w", projectName, ErrAlreadyExists)
	}

	dir, err := s.safeDirname(ctx, projectName)
	if err != nil {
		return nil, err
	}

	proj := &models.Project{
		ProjectName: projectName,
		ProjectDir:  dir,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (project_name, project_dir, created_at) VALUES (?, ?, ?)`,
		proj.ProjectName, proj.ProjectDir, proj.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	if err := s.createProjectDirs(dir); err != nil {
		return nil, err
	}
	return proj, nil
}

// CloneProject creates a new project and copies the source project's agents,
// tools, and prompts into it.
func (s *ProjectService) CloneProject(ctx context.Context, sourceDir, newName string) (*models.Project, error) {
	if _, err := s.GetProjectByDir(ctx, sourceDir); err != nil {
		return nil, err
	}
	proj, err := s.CreateProject(ctx, newName)
	if err != nil {
		return nil, err
	}
	for _, sub := range []string{"agents", "tools", "prompts"} {
		src := filepath.Join(s.userDir, sourceDir, sub)
		dst := filepath.Join(s.userDir, proj.ProjectDir, sub)
		if err := copyDir(src, dst); err != nil {
			return nil, fmt.Errorf("clone %s: %w", sub, err)
		}
	}
	return proj, nil
}

// GetProjectByDir returns a project by its directory slug, or ErrNotFound.
func (s *ProjectService) GetProjectByDir(ctx context.Context, projectDir string) (*models.Project, error) {
	var proj models.Project
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT project_name, project_dir, created_at FROM projects WHERE project_dir = ?`,
		projectDir).Scan(&proj.ProjectName, &proj.ProjectDir, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", projectDir, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	proj.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &proj, nil
}

// ListProjects returns all projects, oldest first.
func (s *ProjectService) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_name, project_dir, created_at FROM projects ORDER BY created_at, project_dir`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var proj models.Project
		var createdAt int64
		if err := rows.Scan(&proj.ProjectName, &proj.ProjectDir, &createdAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		proj.CreatedAt = time.UnixMilli(createdAt).UTC()
		projects = append(projects, &proj)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project row and its workspace directory. Deleting
// the default project is forbidden.
func (s *ProjectService) DeleteProject(ctx context.Context, projectDir string) error {
	if projectDir == DefaultProjectDir {
		return fmt.Errorf("default project: %w", ErrProtected)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE project_dir = ?`, projectDir)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", projectDir, ErrNotFound)
	}
	if err := os.RemoveAll(filepath.Join(s.userDir, projectDir)); err != nil {
		return fmt.Errorf("remove project directory: %w", err)
	}
	return nil
}

// ResolveSubdir returns the project's subdirectory (tools or prompts),
// falling back to the default project when the named project does not carry
// one. The agents directory never falls back.
func (s *ProjectService) ResolveSubdir(projectDir, sub string) string {
	path := filepath.Join(s.userDir, projectDir, sub)
	if sub == "agents" {
		return path
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if entries, err := os.ReadDir(path); err == nil && len(entries) > 0 {
			return path
		}
	}
	return filepath.Join(s.userDir, DefaultProjectDir, sub)
}

func (s *ProjectService) createProjectDirs(projectDir string) error {
	for _, sub := range []string{"agents", "tools", "prompts"} {
		if err := os.MkdirAll(filepath.Join(s.userDir, projectDir, sub), 0o755); err != nil {
			return fmt.Errorf("create project directory: %w", err)
		}
	}
	return nil
}

// safeDirname derives a filesystem-safe slug from the project name: lowercase,
// spaces become underscores, everything outside [a-z0-9_-] is dropped, and the
// result is capped at 50 characters. Collisions get a numeric suffix.
func (s *ProjectService) safeDirname(ctx context.Context, projectName string) (string, error) {
	lowered := strings.ToLower(strings.TrimSpace(projectName))
	lowered = strings.ReplaceAll(lowered, " ", "_")

	var b strings.Builder
	for _, c := range lowered {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-' {
			b.WriteRune(c)
		}
	}
	base := b.String()
	if base == "" {
		base = "project"
	}
	if len(base) > 50 {
		base = base[:50]
	}

	candidate := base
	for suffix := 2; ; suffix++ {
		var count int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM projects WHERE project_dir = ?`, candidate).Scan(&count)
		if err != nil {
			return "", fmt.Errorf("check project dir: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}

func copyDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}

	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
