package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/op/go-logging"
	clientv3 "go.etcd.io/etcd/client/v3"

	"langrpc"
	ilogging "langrpc/internal/logging"
	"langrpc/loadbalance"
	"langrpc/loadbalance/roundrobin"
	"langrpc/registry/etcd"
	"langrpc/rpc"
	"langrpc/rpc/message"
)

var log = logging.MustGetLogger("registry-example")

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
	client := langrpc.NewClient(
		langrpc.ClientWithRegistry(r, 3*time.Second),
		langrpc.ClientWithPickerBuilder(&roundrobin.WeightPickerBuilder{Filter: loadbalance.GroupFilter}),
		langrpc.ClientWithRPCOptions(rpc.ClientWithTimeout(5*time.Second)),
	)
	defer func() {
		_ = client.Close()
	}()

	ctx := context.Background()
	c, err := client.Dial(ctx, "summarize", "/summarize")
	if err != nil {
		log.Fatal(err)
	}
	for i := 0; i < 9; i++ {
		out, err := c.Invoke(ctx, message.Int(int64(i)))
		if err != nil {
			log.Error(err)
			continue
		}
		fmt.Println(out)
	}
	canary := loadbalance.WithGroup(ctx, "canary")
	out, err := c.Invoke(canary, message.String("canary only"))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(out)
}
