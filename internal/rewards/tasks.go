package rewards

import (
	"context"

	apperrors "github.com/uptime-rewards/internal/errors"
	"github.com/uptime-rewards/internal/logging"
)

// Task is a one-time social task.
type Task struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Action string `json:"action"`
	URL    string `json:"url"`
	Points int64  `json:"points"`
}

// TaskCatalog is the fixed list of tasks.
var TaskCatalog = []Task{
	{ID: "medium", Title: "Follow on Medium", Action: "follow", URL: "https://medium.com/@jharvi", Points: 5000},
	{ID: "followTwitter", Title: "Follow on X", Action: "follow", URL: "https://x.com/Jharvi_Official", Points: 5000},
	{ID: "retweet", Title: "Retweet our pinned post", Action: "retweet", URL: "https://x.com/jharvi", Points: 5000},
	{ID: "inviteFriends", Title: "Subscribe Jharvi Telegram", Action: "subscribe", URL: "https://t.me/Jharvi_announcements", Points: 5000},
	{ID: "youtube", Title: "Subscribe Youtube Channel", Action: "subscribe", URL: "https://youtube.com/@jharvi", Points: 5000},
	{ID: "instagram", Title: "Follow on Instagram", Action: "follow", URL: "https://instagram.com/jharvi", Points: 5000},
}

// FindTask looks a task up by id.
func FindTask(id string) (Task, bool) {
	for _, t := range TaskCatalog {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// TaskView is a catalog entry with the caller's completion state.
type TaskView struct {
	Task
	Completed bool `json:"completed"`
}

// TaskResult is the outcome of completing a task.
type TaskResult struct {
	TaskID     string `json:"taskId"`
	Points     int64  `json:"points"`
	Duplicated bool   `json:"duplicated"`
}

// TaskService grants social task points once per task.
type TaskService struct {
	store   Store
	granter Granter
	logger  *logging.Logger
}

// NewTaskService creates a task service.
func NewTaskService(store Store, granter Granter, logger *logging.Logger) *TaskService {
	if granter == nil {
		granter = DirectGranter{}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &TaskService{store: store, granter: granter, logger: logger.WithField("component", "tasks")}
}

// SetGranter replaces the granter. It must be called before the service is used.
func (s *TaskService) SetGranter(g Granter) {
	s.granter = g
}

// List returns the catalog with the wallet's completion state.
func (s *TaskService) List(ctx context.Context, wallet string) ([]TaskView, error) {
	acct, err := s.store.Get(ctx, wallet)
	if err != nil {
		return nil, err
	}
	views := make([]TaskView, 0, len(TaskCatalog))
	for _, t := range TaskCatalog {
		views = append(views, TaskView{Task: t, Completed: acct.HasTask(t.ID)})
	}
	return views, nil
}

// Complete grants the task's points unless the wallet already completed it.
func (s *TaskService) Complete(ctx context.Context, wallet, taskID string) (TaskResult, error) {
	task, ok := FindTask(taskID)
	if !ok {
		return TaskResult{}, apperrors.NewNotFoundError("task", taskID)
	}

	granted, err := s.granter.Grant(ctx, wallet, func(ctx context.Context) (int64, error) {
		ok, err := s.store.CompleteTask(ctx, wallet, task.ID, task.Points)
		if err != nil || !ok {
			return 0, err
		}
		return task.Points, nil
	})
	if err != nil {
		return TaskResult{}, err
	}

	if granted == 0 {
		return TaskResult{TaskID: task.ID, Duplicated: true}, nil
	}
	s.logger.WithWallet(wallet).WithField("task", task.ID).Info("Task completed")
	return TaskResult{TaskID: task.ID, Points: granted}, nil
}
