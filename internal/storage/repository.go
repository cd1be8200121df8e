package storage

import (
	"fmt"

	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Robots

func (r *Repository) SaveRobot(robot *Robot) error {
	return r.db.Create(robot).Error
}

func (r *Repository) UpdateRobot(robot *Robot) error {
	return r.db.Save(robot).Error
}

func (r *Repository) GetRobot(id uint) (*Robot, error) {
	var robot Robot
	if err := r.db.First(&robot, id).Error; err != nil {
		return nil, err
	}
	return &robot, nil
}

// ListRobots returns all robots, best performing first.
func (r *Repository) ListRobots() ([]Robot, error) {
	var robots []Robot
	err := r.db.Order("win_rate DESC").Find(&robots).Error
	return robots, err
}

func (r *Repository) ListActiveRobots() ([]Robot, error) {
	var robots []Robot
	err := r.db.Where("active = ?", true).Find(&robots).Error
	return robots, err
}

func (r *Repository) SetRobotStatus(id uint, status string) error {
	return r.db.Model(&Robot{}).Where("id = ?", id).Update("status", status).Error
}

// Strategy versions

func (r *Repository) SaveVersion(v *StrategyVersion) error {
	return r.db.Create(v).Error
}

func (r *Repository) GetVersion(robotID uint, version int) (*StrategyVersion, error) {
	var v StrategyVersion
	err := r.db.Where("robot_id = ? AND version = ?", robotID, version).First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository) ListVersions(robotID uint) ([]StrategyVersion, error) {
	var versions []StrategyVersion
	err := r.db.Where("robot_id = ?", robotID).Order("version DESC").Find(&versions).Error
	return versions, err
}

func (r *Repository) NextVersion(robotID uint) (int, error) {
	var latest StrategyVersion
	err := r.db.Where("robot_id = ?", robotID).Order("version DESC").First(&latest).Error
	if err == gorm.ErrRecordNotFound {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return latest.Version + 1, nil
}

// Build tasks

func (r *Repository) SaveBuildTask(task *BuildTask) error {
	return r.db.Create(task).Error
}

func (r *Repository) UpdateBuildTask(task *BuildTask) error {
	return r.db.Save(task).Error
}

func (r *Repository) GetBuildTask(id string) (*BuildTask, error) {
	var task BuildTask
	if err := r.db.Where("id = ?", id).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// Fetch reports

func (r *Repository) SaveFetchReport(report *FetchReport) error {
	return r.db.Create(report).Error
}

func (r *Repository) GetLatestFetchReport(robotID uint) (*FetchReport, error) {
	var report FetchReport
	err := r.db.Where("robot_id = ?", robotID).Order("created_at DESC").First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// Deployment phases

func (r *Repository) SavePhase(phase *DeploymentPhase) error {
	return r.db.Create(phase).Error
}

func (r *Repository) UpdatePhase(phase *DeploymentPhase) error {
	return r.db.Save(phase).Error
}

func (r *Repository) ListPhases(robotID uint) ([]DeploymentPhase, error) {
	var phases []DeploymentPhase
	err := r.db.Where("robot_id = ?", robotID).Order("created_at ASC").Find(&phases).Error
	return phases, err
}

// DeploymentsSince counts phase records newer than the given robot update,
// used to verify a deployment attempt left the expected trail.
func (r *Repository) LatestDeployment(robotID uint) ([]DeploymentPhase, error) {
	var last DeploymentPhase
	err := r.db.Where("robot_id = ? AND phase = ?", robotID, PhasePreflight).
		Order("created_at DESC").First(&last).Error
	if err != nil {
		return nil, err
	}
	var phases []DeploymentPhase
	err = r.db.Where("robot_id = ? AND created_at >= ?", robotID, last.CreatedAt).
		Order("created_at ASC").Find(&phases).Error
	return phases, err
}

// Events

func (r *Repository) SaveEvent(event *RobotEvent) error {
	return r.db.Create(event).Error
}

func (r *Repository) LogEvent(robotID uint, level, format string, args ...any) error {
	return r.SaveEvent(&RobotEvent{
		RobotID: robotID,
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
}

func (r *Repository) ListEvents(robotID uint, limit int) ([]RobotEvent, error) {
	var events []RobotEvent
	err := r.db.Where("robot_id = ?", robotID).Order("created_at DESC").Limit(limit).Find(&events).Error
	return events, err
}
