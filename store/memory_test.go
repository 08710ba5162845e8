package store

import (
	"context"
	"testing"

	"github.com/gamesense/recsys/core"
)

func TestMemoryStoreKV(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	defer ms.Close()

	if _, err := ms.Get(ctx, "missing"); !core.IsStoreNotFound(err) {
		t.Errorf("Get(missing) err = %v, want store not found", err)
	}

	if err := ms.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := ms.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	if err := ms.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := ms.Get(ctx, "k"); !core.IsStoreNotFound(err) {
		t.Errorf("Get after delete err = %v, want store not found", err)
	}
}

func TestMemoryStoreBatch(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	defer ms.Close()

	if err := ms.BatchSet(ctx, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}); err != nil {
		t.Fatalf("BatchSet: %v", err)
	}
	got, err := ms.BatchGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("BatchGet: %v", err)
	}
	if len(got) != 2 || string(got["a"]) != "1" {
		t.Errorf("BatchGet = %v", got)
	}
}

func TestMemoryStoreZSet(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	defer ms.Close()

	for member, score := range map[string]float64{"g1": 3, "g2": 1, "g3": 2} {
		if err := ms.ZAdd(ctx, "board", score, member); err != nil {
			t.Fatalf("ZAdd: %v", err)
		}
	}

	members, err := ms.ZRange(ctx, "board", 0, -1)
	if err != nil {
		t.Fatalf("ZRange: %v", err)
	}
	want := []string{"g1", "g3", "g2"} // 降序
	for i := range want {
		if members[i] != want[i] {
			t.Fatalf("ZRange = %v, want %v", members, want)
		}
	}

	top, err := ms.ZRangeWithScores(ctx, "board", 0, 0)
	if err != nil {
		t.Fatalf("ZRangeWithScores: %v", err)
	}
	if len(top) != 1 || top[0].Member != "g1" || top[0].Score != 3 {
		t.Errorf("top = %v", top)
	}

	score, err := ms.ZScore(ctx, "board", "g3")
	if err != nil || score != 2 {
		t.Errorf("ZScore(g3) = %v, %v", score, err)
	}
	if _, err := ms.ZScore(ctx, "board", "nope"); !core.IsStoreNotFound(err) {
		t.Errorf("ZScore(missing) err = %v, want store not found", err)
	}

	// 整表替换：旧成员不残留
	if err := ms.ZReplace(ctx, "board", map[string]float64{"g9": 7}); err != nil {
		t.Fatalf("ZReplace: %v", err)
	}
	members, err = ms.ZRange(ctx, "board", 0, -1)
	if err != nil {
		t.Fatalf("ZRange: %v", err)
	}
	if len(members) != 1 || members[0] != "g9" {
		t.Errorf("after ZReplace = %v, want [g9]", members)
	}
}

func TestMemoryStoreZSetTieBreak(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	defer ms.Close()

	// 同分按 member 升序，保证结果稳定
	for _, member := range []string{"b", "a", "c"} {
		if err := ms.ZAdd(ctx, "z", 1, member); err != nil {
			t.Fatalf("ZAdd: %v", err)
		}
	}
	members, err := ms.ZRange(ctx, "z", 0, -1)
	if err != nil {
		t.Fatalf("ZRange: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if members[i] != want[i] {
			t.Fatalf("ZRange = %v, want %v", members, want)
		}
	}
}

func TestMemoryStoreSet(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	defer ms.Close()

	if err := ms.SAdd(ctx, "s", "a", "b", "a"); err != nil {
		t.Fatalf("SAdd: %v", err)
	}
	members, err := ms.SMembers(ctx, "s")
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("SMembers = %v, want 2 unique members", members)
	}

	if err := ms.SReplace(ctx, "s", []string{"x"}); err != nil {
		t.Fatalf("SReplace: %v", err)
	}
	members, err = ms.SMembers(ctx, "s")
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	if len(members) != 1 || members[0] != "x" {
		t.Errorf("after SReplace = %v, want [x]", members)
	}
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	defer ms.Close()

	for _, v := range []string{"g1", "g2", "g3"} {
		if err := ms.LPush(ctx, "l", v); err != nil {
			t.Fatalf("LPush: %v", err)
		}
	}
	got, err := ms.LRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	want := []string{"g3", "g2", "g1"} // 头插：最新在前
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("LRange = %v, want %v", got, want)
		}
	}

	if err := ms.LTrim(ctx, "l", 0, 1); err != nil {
		t.Fatalf("LTrim: %v", err)
	}
	got, err = ms.LRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	if len(got) != 2 || got[0] != "g3" || got[1] != "g2" {
		t.Errorf("after LTrim = %v, want [g3 g2]", got)
	}
}

func TestMemoryStoreHash(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	defer ms.Close()

	if err := ms.HMSet(ctx, "h", map[string][]byte{
		"f1": []byte("v1"),
		"f2": []byte("v2"),
	}); err != nil {
		t.Fatalf("HMSet: %v", err)
	}

	v, err := ms.HGet(ctx, "h", "f1")
	if err != nil || string(v) != "v1" {
		t.Fatalf("HGet = %q, %v", v, err)
	}
	if _, err := ms.HGet(ctx, "h", "nope"); !core.IsStoreNotFound(err) {
		t.Errorf("HGet(missing) err = %v, want store not found", err)
	}

	got, err := ms.HMGet(ctx, "h", []string{"f1", "nope", "f2"})
	if err != nil {
		t.Fatalf("HMGet: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("HMGet = %v, want 2 fields", got)
	}

	all, err := ms.HGetAll(ctx, "h")
	if err != nil {
		t.Fatalf("HGetAll: %v", err)
	}
	if len(all) != 2 || string(all["f2"]) != "v2" {
		t.Errorf("HGetAll = %v", all)
	}
}

func TestMemoryStoreExpiredStructures(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	defer ms.Close()

	// TTL 为负的替换立即过期，读方看到空结果
	if err := ms.ZReplace(ctx, "z", map[string]float64{"g1": 1}, 1); err != nil {
		t.Fatalf("ZReplace: %v", err)
	}
	if err := ms.Expire(ctx, "z", -1); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	// Expire(<=0) 清除过期时间，key 永久有效
	members, err := ms.ZRange(ctx, "z", 0, -1)
	if err != nil {
		t.Fatalf("ZRange: %v", err)
	}
	if len(members) != 1 {
		t.Errorf("ZRange = %v, want [g1]", members)
	}
}
