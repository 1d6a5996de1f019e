package gormstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/clubpoints/pkg/directory"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/leaderboard"
	"github.com/MarkoPoloResearchLab/clubpoints/pkg/workflow"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveRegion inserts or renames a region.
func (store *Store) SaveRegion(ctx context.Context, region directory.Region) error {
	model := Region{ID: region.ID, Name: region.Name}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoUpdates: clause.AssignmentColumns([]string{"name"})}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectRegion, errorCodeSave, err)
	}
	return nil
}

// SaveUser inserts or refreshes a directory user, including the synced secondary score.
func (store *Store) SaveUser(ctx context.Context, user directory.User) error {
	model := User{
		ID:                user.ID,
		Name:              user.Name,
		Email:             user.Email,
		AvatarURL:         user.AvatarURL,
		Role:              user.Role.String(),
		RegionID:          nullableString(user.RegionID),
		ExodeCoursePoints: user.ExodeCoursePoints,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "email", "avatar_url", "role", "region_id", "exode_course_points"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectUser, errorCodeSave, err)
	}
	return nil
}

// SaveClub inserts or updates a club.
func (store *Store) SaveClub(ctx context.Context, club directory.Club) error {
	model := Club{ID: club.ID, Name: club.Name, RegionID: club.RegionID, AmbassadorID: nullableString(club.AmbassadorID)}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "region_id", "ambassador_id"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectClub, errorCodeSave, err)
	}
	return nil
}

func (store *Store) GetUser(ctx context.Context, userID string) (directory.User, error) {
	var model User
	err := store.db.WithContext(ctx).Where("id = ?", userID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return directory.User{}, wrapStoreError(errorSubjectUser, errorCodeGet, workflow.ErrUserNotFound)
	}
	if err != nil {
		return directory.User{}, wrapStoreError(errorSubjectUser, errorCodeGet, err)
	}
	return mapUser(model), nil
}

func (store *Store) GetClub(ctx context.Context, clubID string) (directory.Club, error) {
	var model Club
	err := store.db.WithContext(ctx).Where("id = ?", clubID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return directory.Club{}, wrapStoreError(errorSubjectClub, errorCodeGet, workflow.ErrClubNotFound)
	}
	if err != nil {
		return directory.Club{}, wrapStoreError(errorSubjectClub, errorCodeGet, err)
	}
	return mapClub(model), nil
}

// ListLedClubIDs returns the clubs the user leads as ambassador.
func (store *Store) ListLedClubIDs(ctx context.Context, userID string) ([]string, error) {
	var clubIDs []string
	err := store.db.WithContext(ctx).
		Model(&Club{}).
		Where("ambassador_id = ?", userID).
		Order("name").Order("id").
		Pluck("id", &clubIDs).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectClub, errorCodeList, err)
	}
	return clubIDs, nil
}

// ListMembers resolves a leaderboard population ordered by name, then id.
// Each member carries the clubs it belongs to or leads.
func (store *Store) ListMembers(ctx context.Context, population leaderboard.Population) ([]leaderboard.Member, error) {
	query := store.db.WithContext(ctx).Model(&User{})
	if len(population.Roles) > 0 {
		roles := make([]string, 0, len(population.Roles))
		for _, role := range population.Roles {
			roles = append(roles, role.String())
		}
		query = query.Where("role IN ?", roles)
	}
	if population.ClubID != "" {
		approvedMembers := store.db.WithContext(ctx).
			Model(&Membership{}).
			Select("user_id").
			Where("club_id = ? AND status = ?", population.ClubID, workflow.StatusApproved.String())
		query = query.Where("id IN (?)", approvedMembers)
	}
	var users []User
	if err := query.Order("name").Order("id").Find(&users).Error; err != nil {
		return nil, wrapStoreError(errorSubjectUser, errorCodeList, err)
	}
	members := make([]leaderboard.Member, 0, len(users))
	if len(users) == 0 {
		return members, nil
	}
	userIDs := make([]string, 0, len(users))
	for _, user := range users {
		userIDs = append(userIDs, user.ID)
	}
	clubsByUser, err := store.clubsByUser(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	regionNames, err := store.regionNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		regionID := stringOrEmpty(user.RegionID)
		members = append(members, leaderboard.Member{
			UserID:          user.ID,
			Name:            user.Name,
			AvatarURL:       user.AvatarURL,
			Role:            directory.Role(user.Role),
			RegionID:        regionID,
			RegionName:      regionNames[regionID],
			Clubs:           clubsByUser[user.ID],
			SecondaryPoints: user.ExodeCoursePoints,
		})
	}
	return members, nil
}

// ListClubRosters returns clubs ordered by name with their approved member ids.
func (store *Store) ListClubRosters(ctx context.Context, regionID string) ([]leaderboard.ClubRoster, error) {
	query := store.db.WithContext(ctx).Model(&Club{})
	if regionID != "" {
		query = query.Where("region_id = ?", regionID)
	}
	var clubs []Club
	if err := query.Order("name").Order("id").Find(&clubs).Error; err != nil {
		return nil, wrapStoreError(errorSubjectClub, errorCodeList, err)
	}
	rosters := make([]leaderboard.ClubRoster, 0, len(clubs))
	if len(clubs) == 0 {
		return rosters, nil
	}
	clubIDs := make([]string, 0, len(clubs))
	for _, club := range clubs {
		clubIDs = append(clubIDs, club.ID)
	}
	var memberships []Membership
	err := store.db.WithContext(ctx).
		Where("club_id IN ? AND status = ?", clubIDs, workflow.StatusApproved.String()).
		Order("requested_at").Order("id").
		Find(&memberships).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectMembership, errorCodeList, err)
	}
	membersByClub := make(map[string][]string, len(clubs))
	for _, membership := range memberships {
		membersByClub[membership.ClubID] = append(membersByClub[membership.ClubID], membership.UserID)
	}
	regionNames, err := store.regionNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, club := range clubs {
		rosters = append(rosters, leaderboard.ClubRoster{
			Club:       mapClub(club),
			RegionName: regionNames[club.RegionID],
			MemberIDs:  membersByClub[club.ID],
		})
	}
	return rosters, nil
}

func (store *Store) clubsByUser(ctx context.Context, userIDs []string) (map[string][]directory.Club, error) {
	var memberships []Membership
	err := store.db.WithContext(ctx).
		Where("user_id IN ? AND status = ?", userIDs, workflow.StatusApproved.String()).
		Find(&memberships).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectMembership, errorCodeList, err)
	}
	var clubs []Club
	err = store.db.WithContext(ctx).
		Where("ambassador_id IN ?", userIDs).
		Or("id IN (?)", store.db.WithContext(ctx).Model(&Membership{}).Select("club_id").Where("user_id IN ? AND status = ?", userIDs, workflow.StatusApproved.String())).
		Order("name").Order("id").
		Find(&clubs).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectClub, errorCodeList, err)
	}
	belongs := make(map[string]map[string]bool, len(userIDs))
	for _, membership := range memberships {
		if belongs[membership.UserID] == nil {
			belongs[membership.UserID] = map[string]bool{}
		}
		belongs[membership.UserID][membership.ClubID] = true
	}
	clubsByUser := make(map[string][]directory.Club, len(userIDs))
	for _, club := range clubs {
		for _, userID := range userIDs {
			if belongs[userID][club.ID] || stringOrEmpty(club.AmbassadorID) == userID {
				clubsByUser[userID] = append(clubsByUser[userID], mapClub(club))
			}
		}
	}
	return clubsByUser, nil
}

func (store *Store) regionNames(ctx context.Context) (map[string]string, error) {
	var regions []Region
	if err := store.db.WithContext(ctx).Find(&regions).Error; err != nil {
		return nil, wrapStoreError(errorSubjectRegion, errorCodeList, err)
	}
	names := make(map[string]string, len(regions))
	for _, region := range regions {
		names[region.ID] = region.Name
	}
	return names, nil
}

func mapUser(model User) directory.User {
	return directory.User{
		ID:                model.ID,
		Name:              model.Name,
		Email:             model.Email,
		AvatarURL:         model.AvatarURL,
		Role:              directory.Role(model.Role),
		RegionID:          stringOrEmpty(model.RegionID),
		ExodeCoursePoints: model.ExodeCoursePoints,
	}
}

func mapClub(model Club) directory.Club {
	return directory.Club{
		ID:           model.ID,
		Name:         model.Name,
		RegionID:     model.RegionID,
		AmbassadorID: stringOrEmpty(model.AmbassadorID),
	}
}
