package patchbay

//go:generate mockgen -destination=mock_target_test.go -package=patchbay github.com/birdayz/patchbay/pmachine Target
