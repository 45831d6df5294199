package view

import (
	"sort"

	"github.com/taskfeed/taskfeed/internal/schema"
)

// Cache is the client's local view of the server. It is not safe for
// concurrent use; only the Loop goroutine may call its methods.
type Cache struct {
	projects        map[int64]schema.Project
	selectedProject int64

	displayedProject int64
	tasks            map[int64]schema.Task
	selectedTask     int64

	members map[int64][]schema.Member

	// Deleted ids. Server ids are never reused, so a refetch that raced a
	// delete must not resurrect the entity.
	deletedProjects map[int64]struct{}
	deletedTasks    map[int64]struct{}

	// seq counts upserts. A list loaded after Mark keeps entries upserted
	// since the mark.
	seq         uint64
	projectSeen map[int64]uint64
	taskSeen    map[int64]uint64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	c.Clear()
	return c
}

// Clear drops everything, including selection and the displayed project.
func (c *Cache) Clear() {
	c.projects = make(map[int64]schema.Project)
	c.selectedProject = 0
	c.displayedProject = 0
	c.tasks = make(map[int64]schema.Task)
	c.selectedTask = 0
	c.members = make(map[int64][]schema.Member)
	c.deletedProjects = make(map[int64]struct{})
	c.deletedTasks = make(map[int64]struct{})
	c.projectSeen = make(map[int64]uint64)
	c.taskSeen = make(map[int64]uint64)
}

// Mark returns the current upsert sequence. Pass it to SetProjects or
// SetTasks with a list fetched after the call.
func (c *Cache) Mark() uint64 {
	return c.seq
}

// SetProjects replaces the project list with one fetched after mark.
// Cached copies with a higher version win, and projects upserted since mark
// are kept even if the list predates them. Selection survives if the
// selected project is still present.
func (c *Cache) SetProjects(projects []*schema.Project, mark uint64) {
	next := make(map[int64]schema.Project, len(projects))
	for _, p := range projects {
		if _, deleted := c.deletedProjects[p.ID]; deleted {
			continue
		}
		if cur, ok := c.projects[p.ID]; ok && cur.Version > p.Version {
			next[p.ID] = cur
			continue
		}
		next[p.ID] = *p
	}
	for id, cur := range c.projects {
		if _, ok := next[id]; !ok && c.projectSeen[id] > mark {
			next[id] = cur
		}
	}
	c.projects = next
	for id := range c.projectSeen {
		if _, ok := next[id]; !ok {
			delete(c.projectSeen, id)
		}
	}
	if _, ok := c.projects[c.selectedProject]; !ok {
		c.selectedProject = 0
	}
}

// UpsertProject merges p by id. Deleted projects and copies older than the
// cached one are ignored. It reports whether the cache changed.
func (c *Cache) UpsertProject(p schema.Project) bool {
	if _, deleted := c.deletedProjects[p.ID]; deleted {
		return false
	}
	if cur, ok := c.projects[p.ID]; ok && cur.Version > p.Version {
		return false
	}
	c.projects[p.ID] = p
	c.seq++
	c.projectSeen[p.ID] = c.seq
	return true
}

// RemoveProject drops a deleted project with its members. If it was
// displayed the task list is cleared as well.
func (c *Cache) RemoveProject(id int64) {
	c.deletedProjects[id] = struct{}{}
	c.ForgetProject(id)
}

// ForgetProject drops a project the user can no longer see. Unlike
// RemoveProject it does not block a later upsert of the same id.
func (c *Cache) ForgetProject(id int64) {
	delete(c.projects, id)
	delete(c.projectSeen, id)
	delete(c.members, id)
	if c.selectedProject == id {
		c.selectedProject = 0
	}
	if c.displayedProject == id {
		c.displayedProject = 0
		c.clearTasks()
	}
}

// Project returns a cached project.
func (c *Cache) Project(id int64) (schema.Project, bool) {
	p, ok := c.projects[id]
	return p, ok
}

// SelectProject marks a project as selected. Unknown ids clear selection.
func (c *Cache) SelectProject(id int64) {
	if _, ok := c.projects[id]; !ok {
		id = 0
	}
	c.selectedProject = id
}

// SelectedProjectID returns the selected project, or 0.
func (c *Cache) SelectedProjectID() int64 {
	return c.selectedProject
}

// SetDisplayedProject switches the task list to projectID and empties it.
func (c *Cache) SetDisplayedProject(projectID int64) {
	if c.displayedProject == projectID {
		return
	}
	c.displayedProject = projectID
	c.clearTasks()
}

// DisplayedProjectID returns the project whose tasks are shown, or 0.
func (c *Cache) DisplayedProjectID() int64 {
	return c.displayedProject
}

// SetTasks replaces the task list with one fetched after mark if projectID
// is still displayed. It merges like SetProjects.
func (c *Cache) SetTasks(projectID int64, tasks []*schema.Task, mark uint64) bool {
	if projectID == 0 || projectID != c.displayedProject {
		return false
	}
	next := make(map[int64]schema.Task, len(tasks))
	for _, t := range tasks {
		if _, deleted := c.deletedTasks[t.ID]; deleted {
			continue
		}
		if cur, ok := c.tasks[t.ID]; ok && cur.Version > t.Version {
			next[t.ID] = cur
			continue
		}
		next[t.ID] = *t
	}
	for id, cur := range c.tasks {
		if _, ok := next[id]; !ok && c.taskSeen[id] > mark {
			next[id] = cur
		}
	}
	c.tasks = next
	for id := range c.taskSeen {
		if _, ok := next[id]; !ok {
			delete(c.taskSeen, id)
		}
	}
	if _, ok := c.tasks[c.selectedTask]; !ok {
		c.selectedTask = 0
	}
	return true
}

// UpsertTask merges t by id. Tasks outside the displayed project, deleted
// tasks and copies older than the cached one are ignored. It reports
// whether the cache changed.
func (c *Cache) UpsertTask(t schema.Task) bool {
	if _, deleted := c.deletedTasks[t.ID]; deleted {
		return false
	}
	if t.ProjectID == 0 || t.ProjectID != c.displayedProject {
		return false
	}
	if cur, ok := c.tasks[t.ID]; ok && cur.Version > t.Version {
		return false
	}
	c.tasks[t.ID] = t
	c.seq++
	c.taskSeen[t.ID] = c.seq
	return true
}

// RemoveTask drops a task by id.
func (c *Cache) RemoveTask(id int64) {
	c.deletedTasks[id] = struct{}{}
	delete(c.tasks, id)
	delete(c.taskSeen, id)
	if c.selectedTask == id {
		c.selectedTask = 0
	}
}

// Task returns a cached task.
func (c *Cache) Task(id int64) (schema.Task, bool) {
	t, ok := c.tasks[id]
	return t, ok
}

// SelectTask marks a task as selected. Unknown ids clear selection.
func (c *Cache) SelectTask(id int64) {
	if _, ok := c.tasks[id]; !ok {
		id = 0
	}
	c.selectedTask = id
}

// SelectedTaskID returns the selected task, or 0.
func (c *Cache) SelectedTaskID() int64 {
	return c.selectedTask
}

// SetMembers replaces a project's membership list.
func (c *Cache) SetMembers(projectID int64, members []*schema.Member) {
	list := make([]schema.Member, 0, len(members))
	for _, m := range members {
		list = append(list, *m)
	}
	c.members[projectID] = list
}

// Members returns a copy of a project's cached membership list.
func (c *Cache) Members(projectID int64) ([]schema.Member, bool) {
	list, ok := c.members[projectID]
	if !ok {
		return nil, false
	}
	return append([]schema.Member(nil), list...), true
}

func (c *Cache) clearTasks() {
	c.tasks = make(map[int64]schema.Task)
	c.taskSeen = make(map[int64]uint64)
	c.selectedTask = 0
}

// Snapshot is a point-in-time copy of the cache for readers off the loop.
type Snapshot struct {
	Projects          []schema.Project
	SelectedProjectID int64
	DisplayedProject  int64
	Tasks             []schema.Task
	SelectedTaskID    int64
	Members           []schema.Member
}

// Snapshot copies the cache, ordering projects and tasks by id.
func (c *Cache) Snapshot() Snapshot {
	s := Snapshot{
		Projects:          make([]schema.Project, 0, len(c.projects)),
		SelectedProjectID: c.selectedProject,
		DisplayedProject:  c.displayedProject,
		Tasks:             make([]schema.Task, 0, len(c.tasks)),
		SelectedTaskID:    c.selectedTask,
	}
	for _, p := range c.projects {
		s.Projects = append(s.Projects, p)
	}
	sort.Slice(s.Projects, func(i, j int) bool { return s.Projects[i].ID < s.Projects[j].ID })

	for _, t := range c.tasks {
		s.Tasks = append(s.Tasks, t)
	}
	sort.Slice(s.Tasks, func(i, j int) bool { return s.Tasks[i].ID < s.Tasks[j].ID })

	s.Members, _ = c.Members(c.displayedProject)
	return s
}
