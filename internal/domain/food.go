package domain

import "time"

// FoodEntry — запись журнала питания на устройстве: фото блюда и вердикт сверки лица.
type FoodEntry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ImageURI  string    `json:"imageUri"`
	Timestamp time.Time `json:"timestamp"`
	Verified  bool      `json:"verified"`
}
