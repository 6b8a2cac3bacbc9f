package main

import (
	"www.velocidex.com/golang/basilisk/blobstore"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/datastore"
	"www.velocidex.com/golang/basilisk/dispatch"
	"www.velocidex.com/golang/basilisk/file_store"
	"www.velocidex.com/golang/basilisk/file_store/api"
	"www.velocidex.com/golang/basilisk/ingest"
	"www.velocidex.com/golang/basilisk/logging"
	"www.velocidex.com/golang/basilisk/magic"
	"www.velocidex.com/golang/basilisk/records"
	"www.velocidex.com/golang/basilisk/scales"
	"www.velocidex.com/golang/basilisk/subjects"
)

// Services is the assembled artifact store stack shared by all the
// CLI verbs.
type Services struct {
	ConfigObj  *config.Config
	DataStore  datastore.DataStore
	FileStore  api.FileStore
	BlobStore  blobstore.BlobStore
	Records    *records.Store
	Subjects   *subjects.Service
	Registry   *scales.Registry
	Queue      *dispatch.PondQueue
	Dispatcher *dispatch.Dispatcher
	Ingestor   *ingest.Ingestor
}

// startServices builds the full stack against the configured
// backends. Records left pending or running by an earlier crash are
// swept to failed before any new work is accepted.
func startServices(config_obj *config.Config) (*Services, error) {
	db, err := datastore.GetDataStore(config_obj)
	if err != nil {
		return nil, err
	}

	files, err := file_store.GetFileStore(config_obj)
	if err != nil {
		return nil, err
	}

	blobs, err := blobstore.GetBlobStore(config_obj)
	if err != nil {
		return nil, err
	}

	recs := records.NewStore(db, blobs)
	err = recs.SweepIncomplete(config_obj)
	if err != nil {
		return nil, err
	}

	subs := subjects.NewService(config_obj, db, files, recs)

	registry := scales.NewRegistry(config_obj)
	err = registry.Load(nil)
	if err != nil {
		return nil, err
	}

	var detector magic.Detector
	magic_detector, err := magic.NewMagicDetector()
	if err != nil {
		logging.GetLogger(config_obj, &logging.ToolComponent).
			Warn("magic database unavailable: %v", err)
	} else {
		detector = magic_detector
	}

	queue := dispatch.NewPondQueue(config_obj.Worker.PoolSize)
	dispatcher := dispatch.NewDispatcher(
		config_obj, registry, recs, subs, files, queue)

	ingestor := ingest.NewIngestor(
		config_obj, subs, files, detector, dispatcher)
	dispatcher.SetSubmitter(ingest.NewSubmitter(ingestor, subs))

	return &Services{
		ConfigObj:  config_obj,
		DataStore:  db,
		FileStore:  files,
		BlobStore:  blobs,
		Records:    recs,
		Subjects:   subs,
		Registry:   registry,
		Queue:      queue,
		Dispatcher: dispatcher,
		Ingestor:   ingestor,
	}, nil
}

func (self *Services) Close() {
	self.Queue.Stop()
	self.BlobStore.Close()
	self.DataStore.Close()
}
