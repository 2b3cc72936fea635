// 角色配置目录与背景图片目录的轮询索引。
//
// fetch-configs / fetch-backgrounds 读取的是内存中的快照，
// Watch 按修改时间轮询目录并在变化时刷新快照。
package config

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ConfigFile 是一个可切换的角色配置文件
type ConfigFile struct {
	Filename string `json:"filename"`
	Name     string `json:"name"`
}

// BackgroundFile 是一张背景图片
type BackgroundFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

var backgroundExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

// --- 目录索引类型定义 ---

// Catalog indexes the character config directory and the background directory.
type Catalog struct {
	mu sync.RWMutex

	configDir     string
	backgroundDir string

	configs     []ConfigFile
	backgrounds []BackgroundFile

	// 轮询用的最后修改时间
	lastModTimes map[string]time.Time

	logger *zap.Logger
}

// NewCatalog creates a catalog and performs the first scan. Missing
// directories yield empty lists.
func NewCatalog(configDir, backgroundDir string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{
		configDir:     configDir,
		backgroundDir: backgroundDir,
		lastModTimes:  make(map[string]time.Time),
		logger:        logger.With(zap.String("component", "config_catalog")),
	}
	c.changed()
	c.Refresh()
	return c
}

// Configs returns the character config files sorted by filename.
func (c *Catalog) Configs() []ConfigFile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ConfigFile(nil), c.configs...)
}

// Backgrounds returns the background images sorted by name.
func (c *Catalog) Backgrounds() []BackgroundFile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]BackgroundFile(nil), c.backgrounds...)
}

// Refresh rescans both directories.
func (c *Catalog) Refresh() {
	configs := scanConfigs(c.configDir, c.logger)
	backgrounds := scanBackgrounds(c.backgroundDir)

	c.mu.Lock()
	c.configs = configs
	c.backgrounds = backgrounds
	c.mu.Unlock()

	c.logger.Debug("catalog refreshed",
		zap.Int("configs", len(configs)),
		zap.Int("backgrounds", len(backgrounds)))
}

// Watch polls both directories every interval and refreshes on change.
// It blocks until ctx ends.
func (c *Catalog) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.changed() {
				c.Refresh()
			}
		}
	}
}

// changed 比较目录下各文件的修改时间，返回是否有新增、修改或删除
func (c *Catalog) changed() bool {
	seen := make(map[string]time.Time)
	for _, dir := range []string{c.configDir, c.backgroundDir} {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			info, err := e.Info()
			if err != nil || e.IsDir() {
				continue
			}
			seen[filepath.Join(dir, e.Name())] = info.ModTime()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	diff := len(seen) != len(c.lastModTimes)
	if !diff {
		for path, mod := range seen {
			if last, ok := c.lastModTimes[path]; !ok || !last.Equal(mod) {
				diff = true
				break
			}
		}
	}
	c.lastModTimes = seen
	return diff
}

// --- 扫描 ---

func scanConfigs(dir string, logger *zap.Logger) []ConfigFile {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read config directory", zap.String("dir", dir), zap.Error(err))
		}
		return nil
	}

	var out []ConfigFile
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		out = append(out, ConfigFile{Filename: e.Name(), Name: confName(filepath.Join(dir, e.Name()), logger)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

// confName 读取 character_config.conf_name，失败时回退到文件名
func confName(path string, logger *zap.Logger) string {
	fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("failed to read character config", zap.String("path", path), zap.Error(err))
		return fallback
	}
	var doc struct {
		Character struct {
			ConfName string `yaml:"conf_name"`
		} `yaml:"character_config"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		logger.Warn("invalid character config", zap.String("path", path), zap.Error(err))
		return fallback
	}
	if doc.Character.ConfName == "" {
		return fallback
	}
	return doc.Character.ConfName
}

func scanBackgrounds(dir string) []BackgroundFile {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []BackgroundFile
	for _, e := range entries {
		if e.IsDir() || !backgroundExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, BackgroundFile{Name: e.Name(), URL: "/bg/" + e.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
