package opsmanager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"go.uber.org/multierr"

	"github.com/cuemby/opsmgr/pkg/types"
)

// DefaultPageSize is the itemsPerPage sent for pages after the first
const DefaultPageSize = 100

func groupPath(group string, parts ...string) string {
	p := APIPrefix + "/groups/" + url.PathEscape(group)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func pageQuery(page, perPage int) url.Values {
	// The first page is requested without parameters
	if page == 1 {
		return nil
	}
	return url.Values{
		"pageNum":      []string{strconv.Itoa(page)},
		"itemsPerPage": []string{strconv.Itoa(perPage)},
	}
}

func notFound(err error, what string) error {
	var transportErr *types.TransportError
	if errors.As(err, &transportErr) && transportErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", what, multierr.Combine(types.ErrNotFound, err))
	}
	return err
}

// listAll follows the next links of a paginated resource
func listAll[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var items []T
	for page := 1; ; page++ {
		var p types.Page[T]
		if err := c.Get(ctx, path, pageQuery(page, DefaultPageSize), &p); err != nil {
			return nil, err
		}
		items = append(items, p.Results...)
		if !p.HasNext() {
			return items, nil
		}
	}
}

// GroupByName resolves a group by its name
func (c *Client) GroupByName(ctx context.Context, name string) (*types.Group, error) {
	var group types.Group
	if err := c.Get(ctx, APIPrefix+"/groups/byName/"+url.PathEscape(name), nil, &group); err != nil {
		return nil, notFound(err, "group "+name)
	}
	return &group, nil
}

// Groups returns one page of the groups visible to the API user
func (c *Client) Groups(ctx context.Context, page, perPage int) (*types.Page[types.Group], error) {
	var p types.Page[types.Group]
	if err := c.Get(ctx, APIPrefix+"/groups", pageQuery(page, perPage), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AllGroups walks every page of groups
func (c *Client) AllGroups(ctx context.Context) ([]types.Group, error) {
	var groups []types.Group
	for page := 1; ; page++ {
		p, err := c.Groups(ctx, page, DefaultPageSize)
		if err != nil {
			return nil, err
		}
		groups = append(groups, p.Results...)
		if !p.HasNext() {
			return groups, nil
		}
	}
}

// GroupHosts returns the unique monitored hostnames of a group. Hosts
// reporting NO_DATA are skipped.
func (c *Client) GroupHosts(ctx context.Context, group string) ([]string, error) {
	seen := make(map[string]bool)
	var hosts []string

	for page := 1; ; page++ {
		var p types.Page[types.Host]
		if err := c.Get(ctx, groupPath(group, "hosts"), pageQuery(page, DefaultPageSize), &p); err != nil {
			return nil, notFound(err, "hosts of group "+group)
		}
		for _, h := range p.Results {
			if h.TypeName == types.HostTypeNoData || seen[h.Hostname] {
				continue
			}
			seen[h.Hostname] = true
			hosts = append(hosts, h.Hostname)
		}
		if !p.HasNext() {
			break
		}
	}

	sort.Strings(hosts)
	return hosts, nil
}

// GroupInventory maps the name of every group with active agents to its
// hosts
func (c *Client) GroupInventory(ctx context.Context) (map[string][]string, error) {
	groups, err := c.AllGroups(ctx)
	if err != nil {
		return nil, err
	}

	inventory := make(map[string][]string)
	for _, g := range groups {
		if g.ActiveAgentCount <= 0 {
			continue
		}
		hosts, err := c.GroupHosts(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		inventory[g.Name] = hosts
	}
	return inventory, nil
}

// FindGroupForHost returns the name of the first group with active agents
// that monitors host
func (c *Client) FindGroupForHost(ctx context.Context, host string) (string, error) {
	groups, err := c.AllGroups(ctx)
	if err != nil {
		return "", err
	}

	for _, g := range groups {
		if g.ActiveAgentCount <= 0 {
			continue
		}
		hosts, err := c.GroupHosts(ctx, g.ID)
		if err != nil {
			return "", err
		}
		for _, h := range hosts {
			if h == host {
				return g.Name, nil
			}
		}
	}
	return "", fmt.Errorf("no group monitors host %s: %w", host, types.ErrNotFound)
}

// GroupAlerts returns the alerts of a group, across every page
func (c *Client) GroupAlerts(ctx context.Context, group string) ([]types.Alert, error) {
	alerts, err := listAll[types.Alert](ctx, c, groupPath(group, "alerts"))
	if err != nil {
		return nil, notFound(err, "alerts of group "+group)
	}
	return alerts, nil
}

// AutomationConfig fetches the automation configuration of a group
func (c *Client) AutomationConfig(ctx context.Context, group string) (*types.AutomationConfig, error) {
	var cfg types.AutomationConfig
	if err := c.Get(ctx, groupPath(group, "automationConfig"), nil, &cfg); err != nil {
		return nil, notFound(err, "automation config of group "+group)
	}
	return &cfg, nil
}

// PutAutomationConfig replaces the automation configuration of a group
func (c *Client) PutAutomationConfig(ctx context.Context, group string, cfg *types.AutomationConfig) error {
	return c.Put(ctx, groupPath(group, "automationConfig"), cfg, nil)
}

// AutomationStatus fetches the goal state progress of a group
func (c *Client) AutomationStatus(ctx context.Context, group string) (*types.AutomationStatus, error) {
	var status types.AutomationStatus
	if err := c.Get(ctx, groupPath(group, "automationStatus"), nil, &status); err != nil {
		return nil, notFound(err, "automation status of group "+group)
	}
	return &status, nil
}

// MaintenanceWindows lists the maintenance windows of a group, across
// every page
func (c *Client) MaintenanceWindows(ctx context.Context, group string) ([]types.MaintenanceWindow, error) {
	windows, err := listAll[types.MaintenanceWindow](ctx, c, groupPath(group, "maintenanceWindows"))
	if err != nil {
		return nil, notFound(err, "maintenance windows of group "+group)
	}
	return windows, nil
}

// CreateMaintenanceWindow posts a new window and returns it as stored
func (c *Client) CreateMaintenanceWindow(ctx context.Context, group string, w *types.MaintenanceWindow) (*types.MaintenanceWindow, error) {
	var created types.MaintenanceWindow
	if err := c.Post(ctx, groupPath(group, "maintenanceWindows"), w, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteMaintenanceWindow removes one window
func (c *Client) DeleteMaintenanceWindow(ctx context.Context, group, id string) error {
	return c.Delete(ctx, groupPath(group, "maintenanceWindows", url.PathEscape(id)), nil)
}

// ReleaseURL is the download location of the enterprise tarball served by
// Ops Manager for version
func (c *Client) ReleaseURL(version string) string {
	return fmt.Sprintf("%s/automation/mongodb-releases/linux/mongodb-linux-x86_64-enterprise-rhel62-%s.tgz",
		c.baseURL, version)
}
