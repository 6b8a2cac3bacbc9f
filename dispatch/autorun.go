package dispatch

import (
	"context"

	"www.velocidex.com/golang/basilisk/logging"
	"www.velocidex.com/golang/basilisk/subjects"
)

// ExecuteAutoruns queues every autorun command against the freshly
// ingested subject. A command declaring a mime type only runs when it
// exactly matches the subject; a command without one always runs.
// Submissions are asynchronous and best effort - a failed submission
// is logged and the rest proceed.
func (self *Dispatcher) ExecuteAutoruns(
	ctx context.Context, subject *subjects.Subject) {

	if self.config_obj.Scales == nil || !self.config_obj.Scales.Autoruns {
		return
	}

	logger := logging.GetLogger(self.config_obj, &logging.DispatchComponent)

	for _, autorun := range self.registry.Autoruns(subject.FileType) {
		if autorun.Mime != "" && autorun.Mime != subject.Mime {
			continue
		}

		_, _, err := self.Queue(ctx, &Request{
			Sha256Digest: subject.Sha256Digest,
			FileType:     subject.FileType,
			Scale:        autorun.Scale,
			Command:      autorun.Command,
			Asynchronous: true,
		})
		if err != nil {
			logger.Warn("autorun %v/%v on %v: %v", autorun.Scale,
				autorun.Command, subject.Sha256Digest, err)
		}
	}
}
