// Package ddb provides a DynamoDB implementation of checkpoint.Store.
//
// Each scalar is one item. The partition key is the computation instance
// and the sort key is the scalar key, so one table serves any number of
// instances:
//
//	aws dynamodb create-table \
//	  --table-name steparena-scalars \
//	  --attribute-definitions AttributeName=instance,AttributeType=S AttributeName=key,AttributeType=S \
//	  --key-schema AttributeName=instance,KeyType=HASH AttributeName=key,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
//
// Apply writes a change set with TransactWriteItems, so the scalars of a
// step commit together.
package ddb
