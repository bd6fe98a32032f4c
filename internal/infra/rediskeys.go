package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "vitalpolicy"
)

// Ключи клиентского хранилища (Local Cache / список полисов).
// Совпадают с ключами устройства, чтобы файл и Redis были взаимозаменяемы.
const (
	StoreKeyPolicies    = "@blockchain_policy_data"
	StoreKeyHealthScore = "@health_score"
	StoreKeyProfilePic  = "@profile_pic"
	StoreKeyFoodEntries = "food_entries"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanHealthScore — свежий healthScore, полученный релеем из Remote Score Service.
	RedisChanHealthScore = RedisNamespace + ":scores:health"
)

// GetInflightKey ключ блокировки "один запрос в полете" для вида действия и ресурса
func GetInflightKey(action, resource string) string {
	return fmt.Sprintf("%s:inflight:%s:%s", RedisNamespace, action, resource)
}

// GetStoreKey ключ клиентского хранилища внутри пространства имен Redis
func GetStoreKey(key string) string {
	return fmt.Sprintf("%s:store:%s", RedisNamespace, key)
}
