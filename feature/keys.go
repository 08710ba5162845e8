package feature

// Redis key 约定。所有特征相关的 key 都集中在这里，避免散落拼接。
//
//	user_seq:{user}            List   用户行为序列（头部最新，定长滑窗）
//	embeddings:{model}:user    Hash   用户向量，field = userID，value = JSON []float32
//	embeddings:{model}:item    Hash   物品向量，field = itemID，value = JSON []float32
//	popular_games              ZSet   热门榜（score = 热度），整榜原子替换
//	genre_index:{genre}        Set    类型倒排索引
//	game_meta:{item}           String 游戏元数据 JSON
//	rec_cache:{user}           String 推荐结果缓存（仅 ID 列表）

// Embedding 归属类型
const (
	EmbeddingKindUser = "user"
	EmbeddingKindItem = "item"
)

// PopularityKey 是全局热门榜的 key。
const PopularityKey = "popular_games"

func SequenceKey(userID string) string { return "user_seq:" + userID }

func EmbeddingKey(model, kind string) string { return "embeddings:" + model + ":" + kind }

func GenreIndexKey(genre string) string { return "genre_index:" + genre }

func MetadataKey(itemID string) string { return "game_meta:" + itemID }

func ResultCacheKey(userID string) string { return "rec_cache:" + userID }
