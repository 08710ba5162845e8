package vector

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/rs/zerolog"
)

func newFlatManager(t *testing.T, dim int) *Manager {
	t.Helper()
	cfg := DefaultConfig(dim)
	cfg.Kind = KindFlat
	return NewManager(cfg, zerolog.Nop())
}

func TestManagerBuildAndSearch(t *testing.T) {
	ctx := context.Background()
	m := newFlatManager(t, 2)

	if m.Ready() {
		t.Fatal("manager should not be ready before build")
	}
	if _, err := m.Search(ctx, []float32{1, 0}, 3, nil); !IsNotReady(err) {
		t.Fatalf("Search before build err = %v, want not ready", err)
	}

	if err := m.Build(ctx, map[string][]float32{
		"g1": {1, 0},
		"g2": {0.9, 0.1},
		"g3": {0, 1},
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !m.Ready() || m.Size() != 3 {
		t.Fatalf("Ready=%v Size=%d", m.Ready(), m.Size())
	}

	got, err := m.Search(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0].ID != "g1" || got[1].ID != "g2" {
		t.Fatalf("Search = %v", got)
	}
	// 归一化内积：与自身同方向的向量相似度应为 1
	if math.Abs(got[0].Score-1.0) > 1e-5 {
		t.Errorf("self similarity = %v, want 1", got[0].Score)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("results not in descending score order: %v", got)
	}
}

func TestManagerSearchExcludes(t *testing.T) {
	ctx := context.Background()
	m := newFlatManager(t, 2)
	if err := m.Build(ctx, map[string][]float32{
		"g1": {1, 0},
		"g2": {0.9, 0.1},
		"g3": {0.8, 0.2},
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	got, err := m.Search(ctx, []float32{1, 0}, 2, map[string]bool{"g1": true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, s := range got {
		if s.ID == "g1" {
			t.Fatalf("excluded id leaked: %v", got)
		}
	}
	if len(got) != 2 {
		t.Errorf("exclusion starved results: %v", got)
	}
}

func TestManagerSearchByItem(t *testing.T) {
	ctx := context.Background()
	m := newFlatManager(t, 2)
	if err := m.Build(ctx, map[string][]float32{
		"g1": {1, 0},
		"g2": {0.9, 0.1},
		"g3": {0, 1},
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	got, err := m.SearchByItem(ctx, "g1", 2, nil)
	if err != nil {
		t.Fatalf("SearchByItem: %v", err)
	}
	for _, s := range got {
		if s.ID == "g1" {
			t.Fatalf("item returned as its own neighbor: %v", got)
		}
	}
	if len(got) == 0 || got[0].ID != "g2" {
		t.Errorf("SearchByItem = %v, want g2 first", got)
	}

	// 未索引的 ID：空结果，不报错
	got, err = m.SearchByItem(ctx, "missing", 2, nil)
	if err != nil || got != nil {
		t.Errorf("SearchByItem(missing) = %v, %v", got, err)
	}
}

func TestManagerBatchSearchPerQueryExclusion(t *testing.T) {
	ctx := context.Background()
	m := newFlatManager(t, 2)
	if err := m.Build(ctx, map[string][]float32{
		"g1": {1, 0},
		"g2": {0.9, 0.1},
		"g3": {0, 1},
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	queries := [][]float32{{1, 0}, {1, 0}, {1, 0, 0}}
	excludes := []map[string]bool{{"g1": true}, nil, nil}
	got := m.BatchSearch(ctx, queries, 2, excludes)
	if len(got) != 3 {
		t.Fatalf("BatchSearch returned %d entries, want 3", len(got))
	}
	for _, s := range got[0] {
		if s.ID == "g1" {
			t.Errorf("query 0 exclusion ignored: %v", got[0])
		}
	}
	// 排除集只作用于自己那条查询
	found := false
	for _, s := range got[1] {
		if s.ID == "g1" {
			found = true
		}
	}
	if !found {
		t.Errorf("query 1 inherited query 0's exclusion: %v", got[1])
	}
	// 维度不符的一条失败：对应位置为 nil，不影响其他查询
	if got[2] != nil {
		t.Errorf("bad query should yield nil entry: %v", got[2])
	}
}

func TestManagerIVFBuildClampsAndSearches(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig(2)
	cfg.Kind = KindIVF
	cfg.NList = 100 // 远大于数据量，构建时收缩到 1

	m := NewManager(cfg, zerolog.Nop())
	if err := m.Build(ctx, map[string][]float32{
		"g1": {1, 0},
		"g2": {0.9, 0.1},
		"g3": {0, 1},
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !m.Ready() || m.Size() != 3 {
		t.Fatalf("Ready=%v Size=%d", m.Ready(), m.Size())
	}

	got, err := m.Search(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0].ID != "g1" {
		t.Fatalf("Search = %v, want g1 first", got)
	}
}

func TestManagerAgreesWithBruteForce(t *testing.T) {
	ctx := context.Background()
	const dim, n, topK = 8, 50, 10

	rng := rand.New(rand.NewSource(7))
	embeddings := make(map[string][]float32, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, dim)
		for d := range vec {
			vec[d] = rng.Float32()*2 - 1
		}
		embeddings[fmt.Sprintf("g%02d", i)] = vec
	}
	query := make([]float32, dim)
	for d := range query {
		query[d] = rng.Float32()*2 - 1
	}

	// 精确余弦排序作为基准
	type scored struct {
		id    string
		score float64
	}
	q := normalize(query)
	exact := make([]scored, 0, n)
	for id, vec := range embeddings {
		exact = append(exact, scored{id, dot(q, normalize(vec))})
	}
	sort.Slice(exact, func(i, j int) bool { return exact[i].score > exact[j].score })

	for _, kind := range []Kind{KindIVF, KindHNSW} {
		t.Run(string(kind), func(t *testing.T) {
			cfg := DefaultConfig(dim)
			cfg.Kind = kind
			m := NewManager(cfg, zerolog.Nop())
			if err := m.Build(ctx, embeddings); err != nil {
				t.Fatalf("Build: %v", err)
			}

			got, err := m.Search(ctx, query, topK, nil)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(got) != topK {
				t.Fatalf("got %d results, want %d", len(got), topK)
			}
			for i, s := range got {
				if s.ID != exact[i].id {
					t.Errorf("rank %d: got %s, exact %s", i, s.ID, exact[i].id)
				}
				if math.Abs(s.Score-exact[i].score) > 1e-5 {
					t.Errorf("rank %d: score %v, exact %v", i, s.Score, exact[i].score)
				}
			}
		})
	}
}

func TestManagerBuildRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	m := newFlatManager(t, 2)

	// 全部向量维度不符：构建失败
	if err := m.Build(ctx, map[string][]float32{"g1": {1, 2, 3}}); err == nil {
		t.Fatal("Build with wrong dims should fail")
	}
	if m.Ready() {
		t.Fatal("failed build must not install a snapshot")
	}

	// 部分维度不符：跳过坏向量，索引其余
	if err := m.Build(ctx, map[string][]float32{
		"bad": {1},
		"g1":  {1, 0},
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.Size() != 1 {
		t.Errorf("Size = %d, want 1", m.Size())
	}
}

func TestManagerFailedRebuildKeepsOldSnapshot(t *testing.T) {
	ctx := context.Background()
	m := newFlatManager(t, 2)
	if err := m.Build(ctx, map[string][]float32{"g1": {1, 0}}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := m.Build(ctx, map[string][]float32{}); err == nil {
		t.Fatal("empty rebuild should fail")
	}
	if !m.Ready() || m.Size() != 1 {
		t.Errorf("old snapshot lost after failed rebuild: Ready=%v Size=%d", m.Ready(), m.Size())
	}
	got, err := m.Search(ctx, []float32{1, 0}, 1, nil)
	if err != nil || len(got) != 1 || got[0].ID != "g1" {
		t.Errorf("old snapshot unusable: %v, %v", got, err)
	}
}

func TestManagerQueryDimMismatch(t *testing.T) {
	ctx := context.Background()
	m := newFlatManager(t, 2)
	if err := m.Build(ctx, map[string][]float32{"g1": {1, 0}}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := m.Search(ctx, []float32{1, 0, 0}, 1, nil); err == nil {
		t.Error("query with wrong dim should fail")
	}
}

func TestManagerSaveLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	m := newFlatManager(t, 2)
	if err := m.Build(ctx, map[string][]float32{
		"g1": {1, 0},
		"g2": {0, 1},
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := m.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored := newFlatManager(t, 2)
	if err := restored.Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restored.Size() != 2 {
		t.Fatalf("restored Size = %d, want 2", restored.Size())
	}
	got, err := restored.Search(ctx, []float32{1, 0}, 1, nil)
	if err != nil || len(got) != 1 || got[0].ID != "g1" {
		t.Errorf("restored Search = %v, %v", got, err)
	}

	// 映射文件缺失：加载报错，不产出半残索引
	broken := newFlatManager(t, 2)
	if err := broken.Load(t.TempDir()); err == nil {
		t.Error("Load from empty dir should fail")
	}
	if broken.Ready() {
		t.Error("failed load must not install a snapshot")
	}
}

func TestClampNList(t *testing.T) {
	tests := []struct {
		cfg  int
		n    int
		want int
	}{
		{100, 1000, 100}, // 配置值够用
		{100, 50, 5},     // 每聚类至少 10 个向量
		{100, 3, 1},      // 下限 1
		{0, 1000, 1},     // 非法配置取下限
	}
	for _, tt := range tests {
		if got := clampNList(tt.cfg, tt.n); got != tt.want {
			t.Errorf("clampNList(%d, %d) = %d, want %d", tt.cfg, tt.n, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	v := normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("normalize = %v", v)
	}

	zero := normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector should stay zero: %v", zero)
	}
}
