package types

import (
	"github.com/hyperengineering/nutrisync/internal/validation"
)

// MaxNameLength bounds free-text payload fields.
const MaxNameLength = 200

// Validate checks the meal payload against its fixed schema.
func (p *MealPayload) Validate() []validation.ValidationError {
	var c validation.Collector
	c.Add(validation.ValidateRequired("food_name", p.FoodName))
	c.Add(validation.ValidateMaxLength("food_name", p.FoodName, MaxNameLength))
	c.Add(validation.ValidateEnum("meal_type", p.MealType, MealTypes))
	c.Add(validation.ValidateNonNegative("quantity", p.Quantity))
	c.Add(validation.ValidateRange("calories", float64(p.Calories), 0, 20000))
	c.Add(validation.ValidateNonNegative("proteins", p.Proteins))
	c.Add(validation.ValidateNonNegative("carbs", p.Carbs))
	c.Add(validation.ValidateNonNegative("fats", p.Fats))
	return c.Errors()
}

// Validate checks the social context payload against its fixed schema.
func (p *SocialContextPayload) Validate() []validation.ValidationError {
	var c validation.Collector
	c.Add(validation.ValidateEnum("setting", p.Setting, SocialSettings))
	for _, companion := range p.Companions {
		c.Add(validation.ValidateRequired("companions", companion))
		c.Add(validation.ValidateMaxLength("companions", companion, MaxNameLength))
	}
	if p.Mood != "" {
		c.Add(validation.ValidateMaxLength("mood", p.Mood, MaxNameLength))
	}
	return c.Errors()
}

// Validate checks the weather payload against its fixed schema.
func (p *WeatherPayload) Validate() []validation.ValidationError {
	var c validation.Collector
	c.Add(validation.ValidateRange("temperature_c", p.TemperatureC, -90, 60))
	c.Add(validation.ValidateEnum("condition", p.Condition, WeatherConditions))
	c.Add(validation.ValidateRange("humidity", float64(p.Humidity), 0, 100))
	return c.Errors()
}

// ValidatePayload decodes and validates a raw payload for the given entity
// type. It returns field errors for schema violations and a decode error for
// malformed JSON or an unknown entity type.
func ValidatePayload(entityType EntityType, raw []byte) ([]validation.ValidationError, error) {
	decoded, err := DecodePayload(entityType, raw)
	if err != nil {
		return nil, err
	}
	switch p := decoded.(type) {
	case *MealPayload:
		return p.Validate(), nil
	case *SocialContextPayload:
		return p.Validate(), nil
	case *WeatherPayload:
		return p.Validate(), nil
	}
	return nil, nil
}
