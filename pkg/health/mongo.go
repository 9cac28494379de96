package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/multierr"

	"github.com/cuemby/opsmgr/pkg/types"
)

// AuthMechanism used by diagnostic sessions
const AuthMechanism = "SCRAM-SHA-1"

// AuthSource is the database the automation user authenticates against
const AuthSource = "admin"

// ReplicaInspector reports the member states of every shard reachable
// through a mongos router
type ReplicaInspector interface {
	MemberStates(ctx context.Context, info types.ConnectionInfo) ([]types.MemberState, error)
}

// Shard is one entry of listShards
type Shard struct {
	ID   string `bson:"_id"`
	Host string `bson:"host"`
}

// ShardHosts splits a listShards host string ("rs0/h1:27018,h2:27018")
// into the replica set name and its seed list
func ShardHosts(host string) (replicaSet string, seeds []string) {
	if rs, list, ok := strings.Cut(host, "/"); ok {
		return rs, strings.Split(list, ",")
	}
	return "", strings.Split(host, ",")
}

// MongoInspector opens diagnostic sessions with the MongoDB driver
type MongoInspector struct {
	// Timeout bounds connection setup and every command
	Timeout time.Duration
}

// NewMongoInspector creates an inspector with default timeouts
func NewMongoInspector() *MongoInspector {
	return &MongoInspector{Timeout: 30 * time.Second}
}

func (m *MongoInspector) clientOptions(info types.ConnectionInfo, replicaSet string, seeds ...string) *options.ClientOptions {
	clientOptions := options.Client()
	clientOptions.ApplyURI(fmt.Sprintf("mongodb://%s", strings.Join(seeds, ",")))

	if m.Timeout > 0 {
		clientOptions.SetConnectTimeout(m.Timeout)
		clientOptions.SetServerSelectionTimeout(m.Timeout)
	}

	if replicaSet != "" {
		clientOptions.SetReplicaSet(replicaSet)
	} else {
		clientOptions.SetDirect(len(seeds) == 1)
	}

	if info.User != "" {
		clientOptions.SetAuth(options.Credential{
			AuthMechanism: AuthMechanism,
			AuthSource:    AuthSource,
			Username:      info.User,
			Password:      info.Password,
		})
	}

	return clientOptions
}

func (m *MongoInspector) connect(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.PrimaryPreferred()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return client, nil
}

// MemberStates lists the shards behind the router and collects the
// replSetGetStatus member states of each of them
func (m *MongoInspector) MemberStates(ctx context.Context, info types.ConnectionInfo) (states []types.MemberState, err error) {
	if dial := NewTCPChecker(info.Address()).Check(ctx); !dial.Healthy {
		return nil, dial.Err
	}

	router, err := m.connect(ctx, m.clientOptions(info, "", info.Address()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to router %s: %w", info.Address(), err)
	}
	defer func() {
		err = multierr.Append(err, router.Disconnect(context.Background()))
	}()

	var listed struct {
		Shards []Shard `bson:"shards"`
	}
	if err := router.Database(AuthSource).RunCommand(ctx, bson.D{{Key: "listShards", Value: 1}}).Decode(&listed); err != nil {
		return nil, fmt.Errorf("listShards failed: %w", err)
	}

	for _, shard := range listed.Shards {
		members, err := m.shardStates(ctx, info, shard)
		if err != nil {
			return nil, err
		}
		states = append(states, members...)
	}
	return states, nil
}

func (m *MongoInspector) shardStates(ctx context.Context, info types.ConnectionInfo, shard Shard) (states []types.MemberState, err error) {
	replicaSet, seeds := ShardHosts(shard.Host)
	if len(seeds) == 0 || seeds[0] == "" {
		return nil, errors.New("shard " + shard.ID + " has no hosts")
	}

	client, err := m.connect(ctx, m.clientOptions(info, replicaSet, seeds...))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to shard %s: %w", shard.ID, err)
	}
	defer func() {
		err = multierr.Append(err, client.Disconnect(context.Background()))
	}()

	var status struct {
		Set     string `bson:"set"`
		Members []struct {
			Name  string `bson:"name"`
			State int    `bson:"state"`
		} `bson:"members"`
	}
	cmd := bson.D{{Key: "replSetGetStatus", Value: 1}}
	if err := client.Database(AuthSource).RunCommand(ctx, cmd, options.RunCmd().SetReadPreference(readpref.PrimaryPreferred())).Decode(&status); err != nil {
		return nil, fmt.Errorf("replSetGetStatus on shard %s failed: %w", shard.ID, err)
	}

	for _, member := range status.Members {
		states = append(states, types.MemberState{
			ReplicaSet: status.Set,
			Name:       member.Name,
			State:      types.ReplicaState(member.State),
		})
	}
	return states, nil
}
