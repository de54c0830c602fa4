package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/slipvault/slipvault/internal/slip/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	genID *snowflake.Node
}

func Provide(genID *snowflake.Node) domain.Repository {
	return &repo{genID: genID}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, slip *domain.Slip, actorID snowflake.ID, tagNames []string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Tags").Create(slip).Error; err != nil {
			return err
		}
		return r.replaceTags(tx, slip, actorID, tagNames)
	})
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Slip, error) {
	var slip domain.Slip
	err := db.WithContext(ctx).
		Preload("Photos").
		Preload("Tags").
		First(&slip, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &slip, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, slip *domain.Slip, actorID snowflake.ID, tagNames []string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations, "created_at").Save(slip).Error; err != nil {
			return err
		}
		// A nil photo list means "leave stored photos alone"; an empty
		// list clears them.
		if slip.Photos != nil {
			if err := tx.Where("slip_id = ?", slip.ID).Delete(&domain.Photo{}).Error; err != nil {
				return err
			}
			for i := range slip.Photos {
				slip.Photos[i].SlipID = slip.ID
				if slip.Photos[i].ID == 0 {
					slip.Photos[i].ID = r.genID.Generate()
				}
			}
			if len(slip.Photos) > 0 {
				if err := tx.Create(&slip.Photos).Error; err != nil {
					return err
				}
			}
		}
		return r.replaceTags(tx, slip, actorID, tagNames)
	})
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM slip_tags WHERE slip_id = ?`, id).Error; err != nil {
			return err
		}
		if err := tx.Where("slip_id = ?", id).Delete(&domain.Photo{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Slip{}, "id = ?", id).Error
	})
}

func (r *repo) ListOwned(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, filter domain.ListFilter) ([]*domain.Slip, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Slip{}).
		Where("slips.user_id = ?", ownerID)
	return listSlips(applyFilter(stmt, filter))
}

func (r *repo) ListCompany(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter domain.ListFilter) ([]*domain.Slip, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Slip{}).
		Where("slips.company_id = ?", companyID)
	return listSlips(applyFilter(stmt, filter))
}

func (r *repo) FindDuplicate(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, place string, date time.Time, amount decimal.Decimal) (*domain.Slip, error) {
	var slip domain.Slip
	err := db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Where("amount_after_tax = ?", amount).
		Where("date = ?", date).
		Where("place LIKE ?", "%"+place+"%").
		Order("created_at desc").
		First(&slip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &slip, nil
}

func (r *repo) TransferOwnership(ctx context.Context, db *gorm.DB, fromUser, toUser snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE slips SET user_id = ? WHERE user_id = ?`,
		toUser,
		fromUser,
	).Error
}

// replaceTags swaps the slip's tag set for the given names: disconnect all,
// then reconnect. Missing tags are created under the acting user, so an
// admin editing a member's slip grows the admin's own tag set. An empty
// list clears every tag.
func (r *repo) replaceTags(tx *gorm.DB, slip *domain.Slip, actorID snowflake.ID, tagNames []string) error {
	tags := make([]domain.Tag, 0, len(tagNames))
	seen := make(map[string]struct{}, len(tagNames))
	for _, name := range tagNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		var tag domain.Tag
		err := tx.Where("user_id = ? AND name = ?", actorID, name).First(&tag).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			tag = domain.Tag{ID: r.genID.Generate(), UserID: actorID, Name: name}
			if err := tx.Create(&tag).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		tags = append(tags, tag)
	}

	if err := tx.Model(slip).Association("Tags").Replace(&tags); err != nil {
		return err
	}
	slip.Tags = tags
	return nil
}

func applyFilter(stmt *gorm.DB, filter domain.ListFilter) *gorm.DB {
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + search + "%"
		stmt = stmt.Where("(slips.title LIKE ? OR slips.place LIKE ? OR slips.summary LIKE ?)", pattern, pattern, pattern)
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		stmt = stmt.
			Joins("JOIN slip_tags ON slip_tags.slip_id = slips.id").
			Joins("JOIN tags ON tags.id = slip_tags.tag_id").
			Where("tags.name = ?", tag)
	}
	if filter.DateFrom != nil {
		stmt = stmt.Where("slips.date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		stmt = stmt.Where("slips.date <= ?", *filter.DateTo)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		stmt = stmt.Offset(filter.Offset)
	}
	return stmt
}

func listSlips(stmt *gorm.DB) ([]*domain.Slip, error) {
	var slips []*domain.Slip
	err := stmt.
		Preload("Photos").
		Preload("Tags").
		Order("slips.date desc, slips.created_at desc").
		Find(&slips).Error
	if err != nil {
		return nil, err
	}
	return slips, nil
}
