package vector

import (
	"fmt"
	"io"

	"github.com/wizenheimer/comet"
)

// Kind 是 ANN 索引类型。
type Kind string

const (
	KindFlat Kind = "flat" // 暴力精确检索，小数据量 / 测试
	KindIVF  Kind = "ivf"  // 倒排聚类，大数据量
	KindHNSW Kind = "hnsw" // 图检索，生产默认
)

// annBackend 把不同 comet 索引类型收敛为统一的窄接口。
// 相似度分数不取后端返回值，由 Manager 用归一化向量内积重新计算，
// 保证各索引类型的分数语义一致（均为余弦相似度）。
type annBackend struct {
	kind     Kind
	add      func(vec []float32) (uint32, error)
	search   func(q []float32, k int) ([]uint32, error)
	writeTo  func(w io.Writer) (int64, error)
	readFrom func(r io.Reader) (int64, error)
}

// clampNList 按数据量收缩 IVF 聚类数：每个聚类至少 10 个向量，下限 1。
func clampNList(configured, n int) int {
	nlist := configured
	if nlist > n/10 {
		nlist = n / 10
	}
	if nlist < 1 {
		nlist = 1
	}
	return nlist
}

// newBackend 构建空索引后端。train 是训练样本（仅 IVF 需要，可为 nil 表示延迟到 ReadFrom）。
func newBackend(cfg Config, n int, train [][]float32) (*annBackend, error) {
	switch cfg.Kind {
	case KindFlat, "":
		idx, err := comet.NewFlatIndex(cfg.Dim, comet.Cosine)
		if err != nil {
			return nil, err
		}
		return &annBackend{
			kind: KindFlat,
			add: func(vec []float32) (uint32, error) {
				node := comet.NewVectorNode(vec)
				if err := idx.Add(*node); err != nil {
					return 0, err
				}
				return uint32(node.ID()), nil
			},
			search: func(q []float32, k int) ([]uint32, error) {
				results, err := idx.NewSearch().WithQuery(q).WithK(k).Execute()
				if err != nil {
					return nil, err
				}
				ids := make([]uint32, 0, len(results))
				for _, res := range results {
					ids = append(ids, uint32(res.GetId()))
				}
				return ids, nil
			},
			writeTo:  idx.WriteTo,
			readFrom: idx.ReadFrom,
		}, nil

	case KindIVF:
		nlist := clampNList(cfg.NList, n)
		idx, err := comet.NewIVFIndex(cfg.Dim, nlist, comet.Cosine)
		if err != nil {
			return nil, err
		}
		if len(train) > 0 {
			nodes := make([]comet.VectorNode, 0, len(train))
			for _, vec := range train {
				nodes = append(nodes, *comet.NewVectorNode(vec))
			}
			if err := idx.Train(nodes); err != nil {
				return nil, err
			}
		}
		nprobe := cfg.NProbe
		if nprobe <= 0 {
			nprobe = 10
		}
		return &annBackend{
			kind: KindIVF,
			add: func(vec []float32) (uint32, error) {
				node := comet.NewVectorNode(vec)
				if err := idx.Add(*node); err != nil {
					return 0, err
				}
				return uint32(node.ID()), nil
			},
			search: func(q []float32, k int) ([]uint32, error) {
				results, err := idx.NewSearch().WithQuery(q).WithK(k).WithNProbes(nprobe).Execute()
				if err != nil {
					return nil, err
				}
				ids := make([]uint32, 0, len(results))
				for _, res := range results {
					ids = append(ids, uint32(res.GetId()))
				}
				return ids, nil
			},
			writeTo:  idx.WriteTo,
			readFrom: idx.ReadFrom,
		}, nil

	case KindHNSW:
		m, efC, efS := cfg.M, cfg.EfConstruction, cfg.EfSearch
		if m <= 0 {
			m = 32
		}
		if efC <= 0 {
			efC = 200
		}
		if efS <= 0 {
			efS = 64
		}
		idx, err := comet.NewHNSWIndex(cfg.Dim, comet.Cosine, m, efC, efS)
		if err != nil {
			return nil, err
		}
		return &annBackend{
			kind: KindHNSW,
			add: func(vec []float32) (uint32, error) {
				node := comet.NewVectorNode(vec)
				if err := idx.Add(*node); err != nil {
					return 0, err
				}
				return uint32(node.ID()), nil
			},
			search: func(q []float32, k int) ([]uint32, error) {
				results, err := idx.NewSearch().WithQuery(q).WithK(k).Execute()
				if err != nil {
					return nil, err
				}
				ids := make([]uint32, 0, len(results))
				for _, res := range results {
					ids = append(ids, uint32(res.GetId()))
				}
				return ids, nil
			},
			writeTo:  idx.WriteTo,
			readFrom: idx.ReadFrom,
		}, nil

	default:
		return nil, fmt.Errorf("unknown index kind: %s", cfg.Kind)
	}
}
