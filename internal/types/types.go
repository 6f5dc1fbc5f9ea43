package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EntityType identifies which syncable domain table a record belongs to.
type EntityType string

const (
	EntityMeal          EntityType = "meal"
	EntitySocialContext EntityType = "social_context"
	EntityWeather       EntityType = "weather"
)

// AllEntityTypes lists every syncable entity type.
var AllEntityTypes = []EntityType{EntityMeal, EntitySocialContext, EntityWeather}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityMeal, EntitySocialContext, EntityWeather:
		return true
	}
	return false
}

// SyncableRecord is the server-side state of one synchronized entity.
// ContentHash is always computed server-side over the canonicalized payload;
// a client-supplied hash is never trusted or stored.
type SyncableRecord struct {
	OwnerID     string          `json:"owner_id"`
	EntityType  EntityType      `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Payload     json.RawMessage `json:"payload"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ContentHash string          `json:"content_hash"`
}

// Tombstone records that an entity was deleted at a given time. Tombstones
// are append-only; they are removed only by retention cleanup past the
// configured horizon.
type Tombstone struct {
	OwnerID    string     `json:"owner_id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	DeletedAt  time.Time  `json:"deleted_at"`
}

// MealPayload is the fixed schema for meal entries.
type MealPayload struct {
	FoodName string     `json:"food_name"`
	MealType string     `json:"meal_type"`
	Quantity float64    `json:"quantity"`
	Calories int        `json:"calories"`
	Proteins float64    `json:"proteins"`
	Carbs    float64    `json:"carbs"`
	Fats     float64    `json:"fats"`
	EatenAt  *time.Time `json:"eaten_at,omitempty"`
}

// MealTypes lists accepted meal_type values.
var MealTypes = []string{"breakfast", "lunch", "dinner", "snack"}

// SocialContextPayload is the fixed schema for social context annotations.
type SocialContextPayload struct {
	Setting    string   `json:"setting"`
	Companions []string `json:"companions,omitempty"`
	Mood       string   `json:"mood,omitempty"`
}

// SocialSettings lists accepted setting values.
var SocialSettings = []string{"alone", "family", "friends", "work", "restaurant"}

// WeatherPayload is the fixed schema for weather annotations.
type WeatherPayload struct {
	TemperatureC float64 `json:"temperature_c"`
	Condition    string  `json:"condition"`
	Humidity     int     `json:"humidity"`
}

// WeatherConditions lists accepted condition values.
var WeatherConditions = []string{"clear", "cloudy", "rain", "snow", "storm"}

// DecodePayload decodes raw JSON into the typed payload variant for the
// given entity type. Unknown fields are rejected so client typos surface as
// validation errors instead of silently dropped data.
func DecodePayload(entityType EntityType, raw json.RawMessage) (any, error) {
	var target any
	switch entityType {
	case EntityMeal:
		target = &MealPayload{}
	case EntitySocialContext:
		target = &SocialContextPayload{}
	case EntityWeather:
		target = &WeatherPayload{}
	default:
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}

	if err := strictUnmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", entityType, err)
	}
	return target, nil
}

// strictUnmarshal decodes JSON rejecting unknown fields.
func strictUnmarshal(raw json.RawMessage, target any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	return nil
}
