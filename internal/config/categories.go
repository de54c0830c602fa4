package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/slipvault/slipvault/internal/extraction"
	"github.com/spf13/viper"
)

// DefaultCategories is the built-in keyword table used when no
// categories.yml is present. Keywords are matched as lowercase substrings
// of the receipt text.
func DefaultCategories() []extraction.Category {
	return []extraction.Category{
		{Name: "Food", Keywords: []string{"restaurant", "cafe", "coffee", "starbucks", "mcdonald", "burger", "pizza", "diner", "bakery"}},
		{Name: "Transport", Keywords: []string{"uber", "bolt", "taxi", "shell", "engen", "bp ", "caltex", "petrol", "fuel", "parking", "toll"}},
		{Name: "Groceries", Keywords: []string{"grocery", "supermarket", "checkers", "spar", "woolworths", "pick n pay", "aldi", "lidl"}},
		{Name: "Utilities", Keywords: []string{"electricity", "water", "municipal", "prepaid", "internet", "fibre", "airtime"}},
		{Name: "Shopping", Keywords: []string{"clothing", "mall", "store", "takealot", "amazon", "game ", "makro"}},
		{Name: "Health", Keywords: []string{"pharmacy", "clicks", "dis-chem", "doctor", "clinic", "hospital", "medical"}},
		{Name: "Entertainment", Keywords: []string{"cinema", "movie", "netflix", "spotify", "theatre", "arcade"}},
		{Name: "Travel", Keywords: []string{"hotel", "lodge", "airline", "flight", "airbnb", "car hire", "rental"}},
	}
}

// CategoriesHolder exposes the current category keyword table and keeps it
// fresh when categories.yml changes on disk.
type CategoriesHolder struct {
	current atomic.Value // holds []extraction.Category
}

func NewCategoriesHolder() (*CategoriesHolder, error) {
	v := viper.New()

	v.SetConfigName("categories")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/slipvault/config")
	v.AddConfigPath("/etc/slipvault")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SLIPVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &CategoriesHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultCategories())
		return holder, nil
	}

	cats, err := unmarshalCategories(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cats)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalCategories(v)
		if err != nil {
			log.Printf("[categories] reload failed: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[categories] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *CategoriesHolder) Get() []extraction.Category {
	return h.current.Load().([]extraction.Category)
}

func unmarshalCategories(v *viper.Viper) ([]extraction.Category, error) {
	var cats []extraction.Category
	if err := v.UnmarshalKey("categories", &cats); err != nil {
		return nil, err
	}
	if err := validateCategories(cats); err != nil {
		return nil, err
	}
	return cats, nil
}

func validateCategories(cats []extraction.Category) error {
	if len(cats) == 0 {
		return errors.New("categories cannot be empty")
	}
	for _, c := range cats {
		if strings.TrimSpace(c.Name) == "" {
			return errors.New("category name cannot be empty")
		}
		if len(c.Keywords) == 0 {
			return errors.New("category " + c.Name + " has no keywords")
		}
	}
	return nil
}
