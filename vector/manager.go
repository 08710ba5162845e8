package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/gamesense/recsys/core"
)

// Config 是索引配置。
type Config struct {
	Dim  int  `yaml:"dim"`  // 向量维度
	Kind Kind `yaml:"kind"` // flat / ivf / hnsw

	// IVF 参数
	NList  int `yaml:"nlist"`  // 聚类数（按数据量自动收缩：每聚类至少 10 个向量）
	NProbe int `yaml:"nprobe"` // 检索扫描的聚类数

	// HNSW 参数
	M              int `yaml:"m"`
	EfConstruction int `yaml:"ef_construction"`
	EfSearch       int `yaml:"ef_search"`
}

// DefaultConfig 返回默认索引配置。
func DefaultConfig(dim int) Config {
	return Config{
		Dim:            dim,
		Kind:           KindFlat,
		NList:          100,
		NProbe:         10,
		M:              32,
		EfConstruction: 200,
		EfSearch:       64,
	}
}

// snapshot 是一次构建产出的不可变索引快照：后端索引 + 序号/ID 双向映射 +
// 归一化向量（用于统一重算相似度分数）。
type snapshot struct {
	backend     *annBackend
	ids         []string    // 序号 -> 游戏 ID
	vecs        [][]float32 // 序号 -> 归一化向量
	backendIDs  []uint32    // 序号 -> 后端节点 ID
	ords        map[string]int
	byBackendID map[uint32]int
}

// Manager 管理 ANN 索引的完整生命周期：构建、检索、持久化。
//
// 并发模型：
//   - 重建写入全新快照，完成后原子替换指针；进行中的检索继续使用旧快照
//   - 构建失败不触碰现有快照（服务继续用旧索引）
//   - buildMu 串行化重建，检索完全无锁
type Manager struct {
	cfg Config
	log zerolog.Logger

	cur     atomic.Pointer[snapshot]
	buildMu sync.Mutex
}

func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	if cfg.Dim <= 0 {
		cfg.Dim = 64
	}
	return &Manager{cfg: cfg, log: logger}
}

// Ready 返回索引是否可检索。
func (m *Manager) Ready() bool { return m.cur.Load() != nil }

// Size 返回当前索引中的向量数，未就绪返回 0。
func (m *Manager) Size() int {
	snap := m.cur.Load()
	if snap == nil {
		return 0
	}
	return len(snap.ids)
}

// errNotReady 索引未就绪。
var errNotReady = core.NewDomainError(core.ModuleVector, core.ErrorCodeUnavailable, "vector: index not ready")

// IsNotReady 检查错误是否为索引未就绪。
func IsNotReady(err error) bool {
	domainErr := core.GetDomainError(err)
	return domainErr != nil && domainErr.Module == core.ModuleVector && domainErr.Code == core.ErrorCodeUnavailable
}

// Build 从全量物品向量快照重建索引。
//
// 流程：归一化（零模向量原样保留）-> 过滤维度不符/不可用的向量 ->
// 构建新后端（IVF 先训练）-> 逐个写入 -> 原子替换快照。
// 没有任何可用向量时构建失败，现有快照不受影响。
func (m *Manager) Build(ctx context.Context, embeddings map[string][]float32) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	ids := make([]string, 0, len(embeddings))
	for id := range embeddings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	validIDs := make([]string, 0, len(ids))
	vecs := make([][]float32, 0, len(ids))
	for _, id := range ids {
		vec := embeddings[id]
		if len(vec) != m.cfg.Dim {
			m.log.Warn().Str("id", id).Int("dim", len(vec)).Int("want", m.cfg.Dim).Msg("skip vector with wrong dim")
			continue
		}
		validIDs = append(validIDs, id)
		vecs = append(vecs, normalize(vec))
	}
	if len(validIDs) == 0 {
		return core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "vector: no valid vectors to index")
	}

	backend, err := newBackend(m.cfg, len(validIDs), vecs)
	if err != nil {
		return err
	}

	snap := &snapshot{
		backend:     backend,
		ids:         validIDs,
		vecs:        vecs,
		backendIDs:  make([]uint32, len(validIDs)),
		ords:        make(map[string]int, len(validIDs)),
		byBackendID: make(map[uint32]int, len(validIDs)),
	}
	for ord, vec := range vecs {
		if err := ctx.Err(); err != nil {
			return err
		}
		bid, err := backend.add(vec)
		if err != nil {
			return err
		}
		snap.backendIDs[ord] = bid
		snap.ords[snap.ids[ord]] = ord
		snap.byBackendID[bid] = ord
	}

	m.cur.Store(snap)
	m.log.Info().Str("kind", string(backend.kind)).Int("size", len(validIDs)).Msg("index rebuilt")
	return nil
}

// Search 检索与 query 最相似的 topK 个游戏。
//
// exclude 中的 ID 不会出现在结果里；带排除集时向后端多请求一倍候选，
// 以免排除后结果不足。分数是归一化向量内积（即余弦相似度），降序。
func (m *Manager) Search(ctx context.Context, query []float32, topK int, exclude map[string]bool) ([]core.ScoredItem, error) {
	snap := m.cur.Load()
	if snap == nil {
		return nil, errNotReady
	}
	if len(query) != m.cfg.Dim {
		return nil, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput,
			fmt.Sprintf("vector: query dim %d, want %d", len(query), m.cfg.Dim))
	}
	if topK <= 0 {
		return nil, nil
	}

	q := normalize(query)
	k := topK
	if len(exclude) > 0 {
		k = topK * 2
	}
	if k > len(snap.ids) {
		k = len(snap.ids)
	}

	backendIDs, err := snap.backend.search(q, k)
	if err != nil {
		return nil, err
	}

	out := make([]core.ScoredItem, 0, topK)
	for _, bid := range backendIDs {
		ord, ok := snap.byBackendID[bid]
		if !ok {
			// 后端返回了快照之外的占位 ID，跳过
			continue
		}
		itemID := snap.ids[ord]
		if exclude[itemID] {
			continue
		}
		out = append(out, core.ScoredItem{ID: itemID, Score: dot(q, snap.vecs[ord])})
		if len(out) >= topK {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// SearchByItem 以某个已索引游戏的向量为查询做检索（自动排除其自身）。
func (m *Manager) SearchByItem(ctx context.Context, itemID string, topK int, exclude map[string]bool) ([]core.ScoredItem, error) {
	snap := m.cur.Load()
	if snap == nil {
		return nil, errNotReady
	}
	ord, ok := snap.ords[itemID]
	if !ok {
		return nil, nil
	}
	merged := map[string]bool{itemID: true}
	for id := range exclude {
		merged[id] = true
	}
	return m.Search(ctx, snap.vecs[ord], topK, merged)
}

// BatchSearch 批量检索。excludes 与 queries 按下标一一对应（整体或单个条目
// 可为 nil，表示该条不排除），每条查询只受自己的排除集影响。
// 单条失败只记日志并在对应位置返回 nil，不影响其他查询。
func (m *Manager) BatchSearch(ctx context.Context, queries [][]float32, topK int, excludes []map[string]bool) [][]core.ScoredItem {
	out := make([][]core.ScoredItem, len(queries))
	for i, q := range queries {
		var exclude map[string]bool
		if i < len(excludes) {
			exclude = excludes[i]
		}
		results, err := m.Search(ctx, q, topK, exclude)
		if err != nil {
			m.log.Warn().Err(err).Int("query", i).Msg("batch search entry failed")
			continue
		}
		out[i] = results
	}
	return out
}

const (
	indexFileName   = "index.bin"
	mappingFileName = "mapping.json"
)

// mappingFile 与索引文件成对持久化；两者缺一即视为损坏。
type mappingFile struct {
	Kind       Kind        `json:"kind"`
	Dim        int         `json:"dim"`
	IDs        []string    `json:"ids"`
	BackendIDs []uint32    `json:"backend_ids"`
	Vectors    [][]float32 `json:"vectors"`
}

// Save 持久化当前快照到目录（索引文件 + 映射文件，成对写入）。
func (m *Manager) Save(dir string) error {
	snap := m.cur.Load()
	if snap == nil {
		return errNotReady
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	mapping := mappingFile{
		Kind:       snap.backend.kind,
		Dim:        m.cfg.Dim,
		IDs:        snap.ids,
		BackendIDs: snap.backendIDs,
		Vectors:    snap.vecs,
	}
	data, err := json.Marshal(&mapping)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, mappingFileName), data, 0o644); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, indexFileName))
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := snap.backend.writeTo(f); err != nil {
		return err
	}
	return nil
}

// Load 从目录恢复索引并原子替换当前快照。
// 映射文件缺失或与索引不一致时报错（不产出半残索引）。
func (m *Manager) Load(dir string) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	data, err := os.ReadFile(filepath.Join(dir, mappingFileName))
	if err != nil {
		return core.NewDomainError(core.ModuleVector, core.ErrorCodeInternalError,
			fmt.Sprintf("vector: mapping file unreadable: %v", err))
	}
	var mapping mappingFile
	if err := json.Unmarshal(data, &mapping); err != nil {
		return core.NewDomainError(core.ModuleVector, core.ErrorCodeInternalError,
			fmt.Sprintf("vector: mapping file corrupt: %v", err))
	}
	if len(mapping.IDs) != len(mapping.BackendIDs) || len(mapping.IDs) != len(mapping.Vectors) {
		return core.NewDomainError(core.ModuleVector, core.ErrorCodeInternalError,
			"vector: mapping file inconsistent")
	}
	if mapping.Dim != m.cfg.Dim {
		return core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput,
			fmt.Sprintf("vector: persisted dim %d, configured %d", mapping.Dim, m.cfg.Dim))
	}

	cfg := m.cfg
	cfg.Kind = mapping.Kind
	backend, err := newBackend(cfg, len(mapping.IDs), nil)
	if err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(dir, indexFileName))
	if err != nil {
		return core.NewDomainError(core.ModuleVector, core.ErrorCodeInternalError,
			fmt.Sprintf("vector: index file unreadable: %v", err))
	}
	defer f.Close()
	if _, err := backend.readFrom(f); err != nil {
		return err
	}

	snap := &snapshot{
		backend:     backend,
		ids:         mapping.IDs,
		vecs:        mapping.Vectors,
		backendIDs:  mapping.BackendIDs,
		ords:        make(map[string]int, len(mapping.IDs)),
		byBackendID: make(map[uint32]int, len(mapping.IDs)),
	}
	for ord, id := range mapping.IDs {
		snap.ords[id] = ord
		snap.byBackendID[mapping.BackendIDs[ord]] = ord
	}

	m.cur.Store(snap)
	m.log.Info().Str("kind", string(mapping.Kind)).Int("size", len(mapping.IDs)).Str("dir", dir).Msg("index restored")
	return nil
}

// normalize 返回 L2 归一化副本；零模向量原样返回副本。
func normalize(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
