package store

import (
	"github.com/redis/go-redis/v9"
)

type Stores struct {
	rdb *redis.Client
}

func NewStores(rdb *redis.Client) *Stores {
	return &Stores{rdb: rdb}
}

func (s *Stores) Signals() SignalStore {
	return newSignalStore(s.rdb)
}

func (s *Stores) Topics() TopicStore {
	return newTopicStore(s.rdb)
}

func (s *Stores) TopicIndex() TopicIndex {
	return newTopicStore(s.rdb)
}

func (s *Stores) Tasks() TaskStore {
	return newTaskStore(s.rdb)
}

func (s *Stores) Fixes() FixStore {
	return newFixStore(s.rdb)
}

func (s *Stores) Rules() RuleStore {
	return newRuleStore(s.rdb)
}
