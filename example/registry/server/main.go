package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/op/go-logging"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/sync/errgroup"

	ilogging "langrpc/internal/logging"
	"langrpc/registry/etcd"
	"langrpc/rpc/message"
	"langrpc/server"
)

var log = logging.MustGetLogger("registry-example")

type instance struct {
	addr   string
	weight uint32
	group  string
}

func main() {
	if _, err := ilogging.Setup(os.Stderr, "INFO", true); err != nil {
		log.Fatal(err)
	}
	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints: []string{"localhost:2379"},
	})
	if err != nil {
		log.Fatal(err)
	}
	r, err := etcd.NewRegistry(etcdClient)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		_ = r.Close()
	}()

	instances := []instance{
		{addr: "localhost:8081", weight: 5, group: "stable"},
		{addr: "localhost:8082", weight: 3, group: "stable"},
		{addr: "localhost:8083", weight: 1, group: "canary"},
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	var eg errgroup.Group
	for _, inst := range instances {
		inst := inst
		svr := server.NewServer("summarize",
			server.ServerWithRegistry(r),
			server.ServerWithWeight(inst.weight),
			server.ServerWithGroup(inst.group))
		err = svr.AddRoutes("/summarize", server.RunnableFunc(func(ctx context.Context, input message.Value) (message.Value, error) {
			return message.String(fmt.Sprintf("%s (%s) got %s", inst.addr, inst.group, input)), nil
		}))
		if err != nil {
			log.Fatal(err)
		}
		eg.Go(func() error {
			return svr.Start(inst.addr)
		})
		eg.Go(func() error {
			<-ctx.Done()
			return svr.Close()
		})
	}
	if err = eg.Wait(); err != nil {
		log.Fatal(err)
	}
}
