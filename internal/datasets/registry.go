// Package datasets 管理可导入的本地数据集清单：YAML 描述、JSON Schema
// 校验、文件变更热加载。
package datasets

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"backview/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Dataset 一个可导入的数据集：同一 symbol@timeframe 的一组 CSV 文件。
type Dataset struct {
	ID          string   `yaml:"id"`
	Symbol      string   `yaml:"symbol"`
	Timeframe   string   `yaml:"timeframe"`
	Files       []string `yaml:"files"`
	Description string   `yaml:"description"`
}

type fileConfig struct {
	Datasets map[string]Dataset `yaml:"datasets"`
}

// Snapshot 当前清单快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Datasets map[string]Dataset
}

// ChangeListener 在清单重载成功后触发。
type ChangeListener func(Snapshot)

const schemaJSON = `{
  "type": "object",
  "required": ["symbol", "timeframe", "files"],
  "properties": {
    "symbol":      {"type": "string", "minLength": 1},
    "timeframe":   {"type": "string", "minLength": 1},
    "files":       {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
    "description": {"type": "string"}
  }
}`

var datasetSchema = jsonschema.MustCompileString("dataset.json", schemaJSON)

// Registry 读取数据集清单并监听文件变更。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取清单文件并开始监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("datasets registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read datasets config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("datasets reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前清单。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Dataset 返回指定 ID 的数据集。
func (r *Registry) Dataset(id string) (Dataset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.snapshot.Datasets[strings.TrimSpace(id)]
	return ds, ok
}

// IDs 返回排序后的数据集 ID 列表。
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.snapshot.Datasets))
	for id := range r.snapshot.Datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnChange 注册重载回调。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	listeners := make([]ChangeListener, len(r.listeners))
	copy(listeners, r.listeners)
	snap := cloneSnapshot(r.snapshot)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

func (r *Registry) reload() error {
	cfg, err := readDatasetsFile(r.path)
	if err != nil {
		return err
	}
	datasets := make(map[string]Dataset, len(cfg.Datasets))
	for name, ds := range cfg.Datasets {
		norm, err := normalize(name, ds)
		if err != nil {
			return err
		}
		datasets[norm.ID] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Datasets: datasets,
	}
	r.mu.Unlock()
	logger.Infof("datasets registry loaded: %d entries", len(datasets))
	return nil
}

func readDatasetsFile(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read datasets file failed: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse datasets yaml failed: %w", err)
	}
	return cfg, nil
}

func normalize(name string, ds Dataset) (Dataset, error) {
	ds.ID = strings.TrimSpace(name)
	ds.Symbol = strings.ToUpper(strings.TrimSpace(ds.Symbol))
	ds.Timeframe = strings.ToLower(strings.TrimSpace(ds.Timeframe))
	if err := validateDataset(ds); err != nil {
		return Dataset{}, fmt.Errorf("dataset %q: %w", name, err)
	}
	return ds, nil
}

// validateDataset 过一遍 JSON Schema，拿到和前端一致的字段级报错。
func validateDataset(ds Dataset) error {
	files := make([]any, len(ds.Files))
	for i, f := range ds.Files {
		files[i] = f
	}
	doc := map[string]any{
		"symbol":      ds.Symbol,
		"timeframe":   ds.Timeframe,
		"files":       files,
		"description": ds.Description,
	}
	return datasetSchema.Validate(doc)
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := Snapshot{Version: s.Version, LoadedAt: s.LoadedAt, Datasets: make(map[string]Dataset, len(s.Datasets))}
	for k, v := range s.Datasets {
		files := make([]string, len(v.Files))
		copy(files, v.Files)
		v.Files = files
		out.Datasets[k] = v
	}
	return out
}
