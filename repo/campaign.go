package repo

import (
	"context"
	"encoding/json"
	"errors"

	"fidelity/config"
	"fidelity/entity"
	"fidelity/pkg/goutil"

	"gorm.io/gorm"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
)

type Campaign struct {
	ID             *uint64
	Name           *string
	Subject        *string
	Html           *string
	TemplateHtml   *string
	AudienceType   *uint32
	AudienceFilter *string
	ScheduleType   *uint32
	ScheduleTime   *uint64
	Status         *uint32
	TotalSent      *uint64
	TotalOpened    *uint64
	TotalClicked   *uint64
	OpenRate       *float64
	ClickRate      *float64
	CreateTime     *uint64
	UpdateTime     *uint64
}

func (m *Campaign) TableName() string {
	return "campaign_tab"
}

func (m *Campaign) GetID() uint64 {
	if m != nil && m.ID != nil {
		return *m.ID
	}
	return 0
}

func (m *Campaign) GetAudienceFilter() string {
	if m != nil && m.AudienceFilter != nil {
		return *m.AudienceFilter
	}
	return ""
}

type CampaignFilter struct {
	ID      *uint64
	Status  *uint32
	Keyword *string
}

type CampaignRepo interface {
	Create(ctx context.Context, campaign *entity.Campaign) (uint64, error)
	GetByID(ctx context.Context, id uint64) (*entity.Campaign, error)
	GetMany(ctx context.Context, f *CampaignFilter, p *Pagination) ([]*entity.Campaign, *Pagination, error)
	GetDue(ctx context.Context, now, stuckBefore uint64) ([]*entity.Campaign, error)
	Update(ctx context.Context, campaign *entity.Campaign) error
	CountByStatus(ctx context.Context, status entity.CampaignStatus) (uint64, error)
	Count(ctx context.Context) (uint64, error)
	SumTotalSent(ctx context.Context) (uint64, error)
	AvgOpenRate(ctx context.Context) (float64, error)
	Close(ctx context.Context) error
}

type campaignRepo struct {
	orm *gorm.DB
}

func NewCampaignRepo(_ context.Context, mysqlCfg config.MySQL) (CampaignRepo, error) {
	orm, err := gorm.Open(newMysqlDialector(mysqlCfg), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return &campaignRepo{orm: orm}, nil
}

func (r *campaignRepo) Create(_ context.Context, campaign *entity.Campaign) (uint64, error) {
	campaignModel, err := ToCampaignModel(campaign)
	if err != nil {
		return 0, err
	}

	if err := r.orm.Create(campaignModel).Error; err != nil {
		return 0, err
	}

	campaign.ID = campaignModel.ID

	return campaignModel.GetID(), nil
}

func (r *campaignRepo) GetByID(_ context.Context, id uint64) (*entity.Campaign, error) {
	campaignModel := new(Campaign)
	if err := r.orm.Where("id = ?", id).First(campaignModel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}

	return ToCampaign(campaignModel)
}

func (r *campaignRepo) GetMany(_ context.Context, f *CampaignFilter, p *Pagination) ([]*entity.Campaign, *Pagination, error) {
	query := r.orm.Model(new(Campaign))

	if f != nil {
		if f.ID != nil {
			query = query.Where("id = ?", *f.ID)
		}
		if f.Status != nil {
			query = query.Where("status = ?", *f.Status)
		}
		if f.Keyword != nil && *f.Keyword != "" {
			query = query.Where("name LIKE ?", "%"+*f.Keyword+"%")
		}
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, nil, err
	}

	if p == nil {
		p = new(Pagination)
	}

	var (
		limit = p.GetLimit()
		page  = p.GetPage()
	)
	if page == 0 {
		page = 1
	}

	query = query.Offset(int((page - 1) * limit)).Order("id DESC")
	if limit > 0 {
		query = query.Limit(int(limit + 1))
	}

	campaignModels := make([]*Campaign, 0)
	if err := query.Find(&campaignModels).Error; err != nil {
		return nil, nil, err
	}

	var hasNext bool
	if limit > 0 && len(campaignModels) > int(limit) {
		hasNext = true
		campaignModels = campaignModels[:limit]
	}

	campaigns := make([]*entity.Campaign, 0, len(campaignModels))
	for _, campaignModel := range campaignModels {
		campaign, err := ToCampaign(campaignModel)
		if err != nil {
			return nil, nil, err
		}
		campaigns = append(campaigns, campaign)
	}

	return campaigns, &Pagination{
		Page:    goutil.Uint32(page),
		Limit:   p.Limit,
		HasNext: goutil.Bool(hasNext),
		Total:   goutil.Uint32(uint32(count)),
	}, nil
}

// GetDue returns scheduled campaigns whose schedule time has passed, plus
// sending campaigns not updated since stuckBefore, left over by a crashed
// dispatcher. The cutoff keeps campaigns still mid-send from being queued
// a second time.
func (r *campaignRepo) GetDue(_ context.Context, now, stuckBefore uint64) ([]*entity.Campaign, error) {
	campaignModels := make([]*Campaign, 0)
	if err := r.orm.
		Where("(status = ? AND schedule_time <= ?) OR (status = ? AND update_time < ?)",
			uint32(entity.CampaignStatusScheduled), now, uint32(entity.CampaignStatusSending), stuckBefore).
		Order("id ASC").
		Find(&campaignModels).Error; err != nil {
		return nil, err
	}

	campaigns := make([]*entity.Campaign, 0, len(campaignModels))
	for _, campaignModel := range campaignModels {
		campaign, err := ToCampaign(campaignModel)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, campaign)
	}

	return campaigns, nil
}

func (r *campaignRepo) Update(_ context.Context, campaign *entity.Campaign) error {
	campaignModel, err := ToCampaignModel(campaign)
	if err != nil {
		return err
	}
	return r.orm.Model(campaignModel).Where("id = ?", campaign.GetID()).Updates(campaignModel).Error
}

func (r *campaignRepo) CountByStatus(_ context.Context, status entity.CampaignStatus) (uint64, error) {
	var count int64
	if err := r.orm.Model(new(Campaign)).Where("status = ?", uint32(status)).Count(&count).Error; err != nil {
		return 0, err
	}
	return uint64(count), nil
}

func (r *campaignRepo) Count(_ context.Context) (uint64, error) {
	var count int64
	if err := r.orm.Model(new(Campaign)).Count(&count).Error; err != nil {
		return 0, err
	}
	return uint64(count), nil
}

func (r *campaignRepo) SumTotalSent(_ context.Context) (uint64, error) {
	var sum *uint64
	if err := r.orm.Model(new(Campaign)).Select("SUM(total_sent)").Scan(&sum).Error; err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// AvgOpenRate averages open rates over campaigns that actually sent.
func (r *campaignRepo) AvgOpenRate(_ context.Context) (float64, error) {
	var avg *float64
	if err := r.orm.Model(new(Campaign)).
		Where("total_sent > 0").
		Select("AVG(open_rate)").
		Scan(&avg).Error; err != nil {
		return 0, err
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

func (r *campaignRepo) Close(_ context.Context) error {
	return closeOrm(r.orm)
}

func ToCampaign(campaignModel *Campaign) (*entity.Campaign, error) {
	var audienceFilter *entity.SegmentRule
	if s := campaignModel.GetAudienceFilter(); s != "" {
		audienceFilter = new(entity.SegmentRule)
		if err := json.Unmarshal([]byte(s), audienceFilter); err != nil {
			return nil, err
		}
	}

	campaign := &entity.Campaign{
		ID:             campaignModel.ID,
		Name:           campaignModel.Name,
		Subject:        campaignModel.Subject,
		Html:           campaignModel.Html,
		TemplateHtml:   campaignModel.TemplateHtml,
		AudienceFilter: audienceFilter,
		ScheduleTime:   campaignModel.ScheduleTime,
		TotalSent:      campaignModel.TotalSent,
		TotalOpened:    campaignModel.TotalOpened,
		TotalClicked:   campaignModel.TotalClicked,
		OpenRate:       campaignModel.OpenRate,
		ClickRate:      campaignModel.ClickRate,
		CreateTime:     campaignModel.CreateTime,
		UpdateTime:     campaignModel.UpdateTime,
	}

	if campaignModel.AudienceType != nil {
		campaign.AudienceType = entity.AudienceType(*campaignModel.AudienceType)
	}
	if campaignModel.ScheduleType != nil {
		campaign.ScheduleType = entity.ScheduleType(*campaignModel.ScheduleType)
	}
	if campaignModel.Status != nil {
		campaign.Status = entity.CampaignStatus(*campaignModel.Status)
	}

	return campaign, nil
}

func ToCampaignModel(campaign *entity.Campaign) (*Campaign, error) {
	audienceFilter := string(config.EmptyJson)
	if campaign.AudienceFilter != nil {
		var err error
		audienceFilter, err = campaign.AudienceFilter.ToString()
		if err != nil {
			return nil, err
		}
	}

	campaignModel := &Campaign{
		ID:             campaign.ID,
		Name:           campaign.Name,
		Subject:        campaign.Subject,
		Html:           campaign.Html,
		TemplateHtml:   campaign.TemplateHtml,
		AudienceFilter: goutil.String(audienceFilter),
		ScheduleTime:   campaign.ScheduleTime,
		TotalSent:      campaign.TotalSent,
		TotalOpened:    campaign.TotalOpened,
		TotalClicked:   campaign.TotalClicked,
		OpenRate:       campaign.OpenRate,
		ClickRate:      campaign.ClickRate,
		CreateTime:     campaign.CreateTime,
		UpdateTime:     campaign.UpdateTime,
	}

	if campaign.AudienceType != entity.AudienceTypeUnknown {
		campaignModel.AudienceType = goutil.Uint32(uint32(campaign.AudienceType))
	}
	if campaign.ScheduleType != entity.ScheduleTypeUnknown {
		campaignModel.ScheduleType = goutil.Uint32(uint32(campaign.ScheduleType))
	}
	if campaign.Status != entity.CampaignStatusUnknown {
		campaignModel.Status = goutil.Uint32(uint32(campaign.Status))
	}

	return campaignModel, nil
}
