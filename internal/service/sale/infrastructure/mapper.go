package infrastructure

import "github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain"

// ToDomainOffering 将数据库模型转换为领域模型。
func ToDomainOffering(m *OfferingModel) *domain.Offering {
	return &domain.Offering{
		ID:                m.ID,
		Title:             m.Title,
		PublishCount:      m.PublishCount,
		PurchaseLimit:     m.PurchaseLimit,
		SaleAt:            m.SaleAt,
		DrawAt:            m.DrawAt,
		DrawEndAt:         m.DrawEndAt,
		QualificationRule: m.QualificationRule,
		AssetClassID:      m.AssetClassID,
		Status:            domain.OfferingStatus(m.Status),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// ToOfferingModel 将领域模型转换回数据库模型。
func ToOfferingModel(o *domain.Offering) *OfferingModel {
	return &OfferingModel{
		ID:                o.ID,
		Title:             o.Title,
		PublishCount:      o.PublishCount,
		PurchaseLimit:     o.PurchaseLimit,
		SaleAt:            o.SaleAt,
		DrawAt:            o.DrawAt,
		DrawEndAt:         o.DrawEndAt,
		QualificationRule: o.QualificationRule,
		AssetClassID:      o.AssetClassID,
		Status:            string(o.Status),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}
